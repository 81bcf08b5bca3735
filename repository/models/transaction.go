package models

import "time"

// TransactionPriority levels
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// Transaction represents a financial request routed between users for approval
type Transaction struct {
	ID          uint      `gorm:"column:transaction_id;primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Priority    string    `gorm:"column:priority;type:varchar(20);default:'MEDIUM'" json:"priority"`
	Fulfilled   bool      `gorm:"column:fulfilled;default:false" json:"fulfilled"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	CreatorID uint  `gorm:"column:creator_id;index;not null" json:"creator_id"`
	Creator   *User `gorm:"foreignKey:CreatorID" json:"-"`

	TypeName *string          `gorm:"column:type_name;type:varchar(100);index" json:"type_name"`
	Type     *TransactionType `gorm:"foreignKey:TypeName" json:"-"`

	// Relationships
	Forwards  []TransactionForward  `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"forwards,omitempty"`
	Documents []TransactionDocument `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}
