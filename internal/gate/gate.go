// Package gate provides the permission checkpoint used to guard document
// and change-request operations. A user resolves to a Profile (a named
// set of "resource:action" permissions with wildcard support); the Gate
// answers the single capability question hasPermission(user, action,
// resource type).
package gate

import "context"

// Gate answers capability queries for user ids.
type Gate struct {
	resolver ProfileResolver
}

// New creates a Gate over a profile resolver.
func New(resolver ProfileResolver) *Gate {
	return &Gate{resolver: resolver}
}

// Can reports whether the user may perform action on the resource type.
// Unknown users, users without a profile and resolver failures all deny.
func (g *Gate) Can(ctx context.Context, userID uint, action Action, resourceType string) bool {
	if userID == 0 {
		return false
	}
	profile, err := g.resolver.Resolve(ctx, userID)
	if err != nil || profile == nil {
		return false
	}
	return profile.HasPermission(NewPermission(resourceType, action))
}

// Authorize is the error-returning form of Can.
func (g *Gate) Authorize(ctx context.Context, userID uint, action Action, resourceType string) error {
	if !g.Can(ctx, userID, action, resourceType) {
		return ErrUnauthorized
	}
	return nil
}
