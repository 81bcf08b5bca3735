package models

import "time"

// Role controls which administrative endpoints a user may call
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User represents an employee who can create, forward, and review transactions
type User struct {
	ID             uint        `gorm:"column:user_id;primaryKey;autoIncrement" json:"id"`
	Name           string      `gorm:"column:name;type:varchar(100);not null;uniqueIndex" json:"name"`
	HashedPassword string      `gorm:"column:hashed_password;type:varchar(100);not null" json:"-"`
	Role           string      `gorm:"column:role;type:varchar(20);default:'USER'" json:"role"`
	Active         bool        `gorm:"column:active;default:true" json:"active"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	LastLogin      *time.Time  `gorm:"column:last_login" json:"last_login"`
	DepartmentName *string     `gorm:"column:department_name;type:varchar(100);index" json:"department_name"`
	Department     *Department `gorm:"foreignKey:DepartmentName" json:"-"`

	// Relationships
	CreatedTransactions []Transaction        `gorm:"foreignKey:CreatorID" json:"-"`
	SentForwards        []TransactionForward `gorm:"foreignKey:SenderID" json:"-"`
	ReceivedForwards    []TransactionForward `gorm:"foreignKey:ReceiverID" json:"-"`
	UploadedDocuments   []Document           `gorm:"foreignKey:UploaderID" json:"-"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
