package db

import (
	"fmt"
	"strings"

	"github.com/diewo77/go-sheets/internal/models"
	"gorm.io/gorm"
)

// Seed creates the core permissions and the default profiles. Idempotent;
// safe to run on every startup.
func Seed(db *gorm.DB) error {
	if err := seedPermissions(db); err != nil {
		return err
	}
	return seedProfiles(db)
}

func seedPermissions(db *gorm.DB) error {
	permissions := []struct {
		ResourceType string
		Action       string
		Description  string
	}{
		// Superadmin wildcard
		{"*", "*", "Full system access"},
		// Document permissions
		{"document", "*", "All document actions"},
		{"document", "list", "List documents"},
		{"document", "view", "View document grids"},
		{"document", "create", "Upload documents"},
		{"document", "update", "Re-upload document revisions"},
		{"document", "export", "Export document files"},
		// Change request permissions
		{"change_request", "*", "All change request actions"},
		{"change_request", "create", "Propose cell edits"},
		{"change_request", "view", "View change requests"},
		{"change_request", "review", "Accept and decline change requests"},
	}

	for _, p := range permissions {
		perm := models.Permission{
			ResourceType: p.ResourceType,
			Action:       p.Action,
			Description:  p.Description,
		}
		err := db.Where("resource_type = ? AND action = ?", p.ResourceType, p.Action).
			FirstOrCreate(&perm).Error
		if err != nil {
			return fmt.Errorf("seed permission %s:%s: %w", p.ResourceType, p.Action, err)
		}
	}
	return nil
}

func seedProfiles(db *gorm.DB) error {
	profiles := []struct {
		Name        string
		Description string
		Permissions []string // "resource:action" codes
	}{
		{"admin", "Full access", []string{"*:*"}},
		{"editor", "Reviews cell edits and manages documents",
			[]string{"document:*", "change_request:*"}},
		{"user", "Views documents and proposes edits",
			[]string{"document:list", "document:view", "document:export",
				"change_request:create", "change_request:view"}},
	}

	for _, p := range profiles {
		profile := models.Profile{Name: p.Name, Description: p.Description, IsSystem: true}
		err := db.Where("name = ?", p.Name).FirstOrCreate(&profile).Error
		if err != nil {
			return fmt.Errorf("seed profile %s: %w", p.Name, err)
		}
		var perms []models.Permission
		for _, code := range p.Permissions {
			parts := strings.SplitN(code, ":", 2)
			var perm models.Permission
			if err := db.Where("resource_type = ? AND action = ?", parts[0], parts[1]).
				First(&perm).Error; err != nil {
				return fmt.Errorf("seed profile %s: permission %s: %w", p.Name, code, err)
			}
			perms = append(perms, perm)
		}
		if err := db.Model(&profile).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("seed profile %s permissions: %w", p.Name, err)
		}
	}
	return nil
}
