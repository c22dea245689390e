package mysql

import (
	"context"
	"fmt"

	storemodel "taskstream/pkg/store/mysql/model"
)

// RoleRepository resolves user roles from MySQL. Implements
// interfaces.RoleProvider.
type RoleRepository struct {
	ds *Datastore
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(ds *Datastore) *RoleRepository {
	return &RoleRepository{ds: ds}
}

// GetUserRoles retrieves every role assigned to a user. An unknown
// user yields an empty slice, not an error.
func (r *RoleRepository) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	var rows []storemodel.UserRole
	if err := r.ds.DB(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}

	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, row.Role)
	}
	return roles, nil
}
