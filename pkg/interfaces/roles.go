package interfaces

import "context"

// RoleProvider external RBAC collaborator. Lookup failures must never
// block a connection, callers fall back to the guest role.
type RoleProvider interface {
	// GetUserRoles returns the role names held by a user
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
}
