package models

import "time"

// TransactionDocument links a document to a transaction. AttachedAt bounds
// the attachment's validity window: an attachment made before the latest
// forward began is inherited from an earlier hand-off and only its original
// attacher may remove it.
type TransactionDocument struct {
	TransactionID uint         `gorm:"column:transaction_id;primaryKey" json:"transaction_id"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID" json:"-"`

	DocumentID string    `gorm:"column:document_id;primaryKey;type:varchar(50)" json:"document_id"`
	Document   *Document `gorm:"foreignKey:DocumentID" json:"document,omitempty"`

	AttachedBy uint      `gorm:"column:attached_by;index" json:"attached_by"`
	Attacher   *User     `gorm:"foreignKey:AttachedBy" json:"-"`
	AttachedAt time.Time `gorm:"column:attached_at;autoCreateTime" json:"attached_at"`
}
