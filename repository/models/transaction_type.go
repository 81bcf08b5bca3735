package models

// TransactionType is a user-defined category for transactions
type TransactionType struct {
	Name      string `gorm:"column:name;primaryKey;type:varchar(100)" json:"name"`
	CreatorID uint   `gorm:"column:creator_id;index" json:"creator_id"`
	Creator   *User  `gorm:"foreignKey:CreatorID" json:"-"`

	// Relationships
	Transactions []Transaction `gorm:"foreignKey:TypeName" json:"-"`
}
