// Package policy wires the gate to the database-backed user profiles.
package policy

import (
	"context"
	"errors"

	"github.com/diewo77/go-sheets/internal/gate"
	"github.com/diewo77/go-sheets/internal/models"
	"gorm.io/gorm"
)

// DBProfileResolver fetches user profiles from the database.
type DBProfileResolver struct {
	DB *gorm.DB
}

// NewDBProfileResolver creates a new database-backed profile resolver.
func NewDBProfileResolver(db *gorm.DB) *DBProfileResolver {
	return &DBProfileResolver{DB: db}
}

// Resolve looks up the user's profile, preloading permissions.
// Returns nil for unknown users and for users with no profile assigned.
func (r *DBProfileResolver) Resolve(ctx context.Context, userID uint) (gate.Profile, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Preload("Profile.Permissions").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if user.Profile == nil {
		return nil, nil
	}
	return &dbProfileAdapter{profile: user.Profile}, nil
}

// dbProfileAdapter wraps a models.Profile to implement gate.Profile.
type dbProfileAdapter struct {
	profile *models.Profile
}

func (a *dbProfileAdapter) ID() uint     { return a.profile.ID }
func (a *dbProfileAdapter) Name() string { return a.profile.Name }

// HasPermission checks if the profile has the requested permission.
// Supports wildcards: "*:*" and "resource:*".
func (a *dbProfileAdapter) HasPermission(perm gate.Permission) bool {
	for _, p := range a.profile.Permissions {
		if gate.NewPermission(p.ResourceType, gate.Action(p.Action)).Matches(perm) {
			return true
		}
	}
	return false
}

// Permissions returns all permissions as gate.Permission slice.
func (a *dbProfileAdapter) Permissions() []gate.Permission {
	result := make([]gate.Permission, len(a.profile.Permissions))
	for i, p := range a.profile.Permissions {
		result[i] = gate.NewPermission(p.ResourceType, gate.Action(p.Action))
	}
	return result
}
