package models

// Department groups users under an optional manager
type Department struct {
	Name      string `gorm:"column:name;primaryKey;type:varchar(100)" json:"name"`
	ManagerID *uint  `gorm:"column:manager_id" json:"manager_id"`
	Manager   *User  `gorm:"foreignKey:ManagerID" json:"-"`

	// Relationships
	Users []User `gorm:"foreignKey:DepartmentName" json:"users,omitempty"`
}
