package models

import "time"

// Document is an uploaded file stored inline in the database
type Document struct {
	ID         string    `gorm:"column:document_id;primaryKey;type:varchar(50)" json:"id"`
	Title      string    `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Content    []byte    `gorm:"column:content;type:bytea" json:"-"`
	UploadedAt time.Time `gorm:"column:uploaded_at;autoCreateTime" json:"uploaded_at"`
	UploaderID uint      `gorm:"column:uploader_id;index" json:"uploader_id"`
	Uploader   *User     `gorm:"foreignKey:UploaderID" json:"-"`
}
