package repository

import (
	"errors"
	"fmt"

	"github.com/finsys-id/finance-api/repository/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoreDocument saves an uploaded document under a fresh ID
func (r *Repository) StoreDocument(title string, content []byte, uploaderID uint) (*models.Document, *RepositoryError) {
	doc := models.Document{
		ID:         fmt.Sprintf("DOC-%s", uuid.NewString()),
		Title:      title,
		Content:    content,
		UploaderID: uploaderID,
	}
	if err := r.db.Create(&doc).Error; err != nil {
		return nil, dbError(err)
	}
	return &doc, nil
}

// GetDocument loads one document including its content bytes
func (r *Repository) GetDocument(id string) (*models.Document, *RepositoryError) {
	var doc models.Document
	err := r.db.Where("document_id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ruleError(ErrEntityNotFound, "Document does not exist",
				fmt.Sprintf("document %s does not exist", id))
		}
		return nil, dbError(err)
	}
	return &doc, nil
}

// ListDocumentsByUploader returns the metadata of a user's uploads, newest
// first. Content bytes are omitted.
func (r *Repository) ListDocumentsByUploader(uploaderID uint) ([]models.Document, *RepositoryError) {
	var docs []models.Document
	err := r.db.Select("document_id", "title", "uploaded_at", "uploader_id").
		Where("uploader_id = ?", uploaderID).
		Order("uploaded_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, dbError(err)
	}
	return docs, nil
}

// DeleteDocument removes a document that the caller uploaded
func (r *Repository) DeleteDocument(id string, userID uint, isAdmin bool) *RepositoryError {
	doc, repoErr := r.GetDocument(id)
	if repoErr != nil {
		return repoErr
	}
	if doc.UploaderID != userID && !isAdmin {
		return ruleError(ErrNotDocumentAttacher, "Only the uploader can delete a document",
			fmt.Sprintf("document %s was uploaded by user %d", id, doc.UploaderID))
	}
	if err := r.db.Delete(&models.Document{}, "document_id = ?", id).Error; err != nil {
		return dbError(err)
	}
	return nil
}
