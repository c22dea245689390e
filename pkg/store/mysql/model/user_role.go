package model

import "time"

// UserRole MySQL model for the user_roles table. A user may hold
// several roles, the WebSocket layer picks the highest-priority one.
type UserRole struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(255);not null;index:idx_user_id" json:"user_id"`
	Role      string    `gorm:"column:role;type:varchar(32);not null" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for UserRole
func (UserRole) TableName() string {
	return "user_roles"
}
