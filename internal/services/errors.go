package services

import "errors"

var (
	// ErrNotFound covers stale or unknown document ids and missing
	// cells/requests. Handlers map it to 404.
	ErrNotFound = errors.New("not found")
	// ErrPolicyRejected covers edits against locked documents and
	// state-machine or authorization violations. Handlers map it to 403,
	// distinct from not-found.
	ErrPolicyRejected = errors.New("rejected by document policy")
)

// Resource type names used with the permission gate.
const (
	ResourceDocument      = "document"
	ResourceChangeRequest = "change_request"
)
