package gate

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by Gate.Authorize when the check fails.
var ErrUnauthorized = errors.New("unauthorized")

// Profile represents a role with a set of permissions.
type Profile interface {
	ID() uint
	Name() string
	HasPermission(permission Permission) bool
	Permissions() []Permission
}

// ProfileResolver resolves a user id to their profile. A nil profile
// with nil error means the user has none assigned.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID uint) (Profile, error)
}

// StaticProfile is a simple in-memory profile implementation.
// Useful for testing or static configuration.
type StaticProfile struct {
	id          uint
	name        string
	permissions map[Permission]bool
}

// NewStaticProfile creates a profile with the given permissions.
func NewStaticProfile(id uint, name string, permissions ...Permission) *StaticProfile {
	p := &StaticProfile{
		id:          id,
		name:        name,
		permissions: make(map[Permission]bool),
	}
	for _, perm := range permissions {
		p.permissions[perm] = true
	}
	return p
}

func (p *StaticProfile) ID() uint     { return p.id }
func (p *StaticProfile) Name() string { return p.name }

// Permissions returns all permissions in this profile.
func (p *StaticProfile) Permissions() []Permission {
	perms := make([]Permission, 0, len(p.permissions))
	for perm := range p.permissions {
		perms = append(perms, perm)
	}
	return perms
}

// HasPermission checks if the profile has the requested permission.
// Supports wildcard matching.
func (p *StaticProfile) HasPermission(requested Permission) bool {
	for perm := range p.permissions {
		if perm.Matches(requested) {
			return true
		}
	}
	return false
}

// StaticResolver is a simple in-memory resolver for testing.
type StaticResolver struct {
	profiles map[uint]Profile
}

// NewStaticResolver creates a resolver with predefined user-profile mappings.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{profiles: make(map[uint]Profile)}
}

// Set assigns a profile to a user.
func (r *StaticResolver) Set(userID uint, profile Profile) {
	r.profiles[userID] = profile
}

// Resolve returns the profile for the given user.
func (r *StaticResolver) Resolve(_ context.Context, userID uint) (Profile, error) {
	if profile, ok := r.profiles[userID]; ok {
		return profile, nil
	}
	return nil, nil
}
