package repository

import (
	"errors"
	"fmt"

	"github.com/finsys-id/finance-api/repository/models"
	"gorm.io/gorm"
)

// CreateTransactionType stores a new transaction category
func (r *Repository) CreateTransactionType(name string, creatorID uint) (*models.TransactionType, *RepositoryError) {
	txType := models.TransactionType{Name: name, CreatorID: creatorID}
	if err := r.db.Create(&txType).Error; err != nil {
		return nil, dbError(err)
	}
	return &txType, nil
}

// ListTransactionTypes returns all transaction categories
func (r *Repository) ListTransactionTypes() ([]models.TransactionType, *RepositoryError) {
	var types []models.TransactionType
	if err := r.db.Order("name ASC").Find(&types).Error; err != nil {
		return nil, dbError(err)
	}
	return types, nil
}

// DeleteTransactionType removes a category that its creator or an admin no
// longer wants.
func (r *Repository) DeleteTransactionType(name string, userID uint, isAdmin bool) *RepositoryError {
	var txType models.TransactionType
	err := r.db.Where("name = ?", name).First(&txType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ruleError(ErrEntityNotFound, "Transaction type does not exist",
				fmt.Sprintf("transaction type %s does not exist", name))
		}
		return dbError(err)
	}
	if txType.CreatorID != userID && !isAdmin {
		return ruleError(ErrMissingRole, "Only the creator or an admin can delete a type",
			fmt.Sprintf("transaction type %s was created by user %d", name, txType.CreatorID))
	}
	if err := r.db.Where("name = ?", name).Delete(&models.TransactionType{}).Error; err != nil {
		return dbError(err)
	}
	return nil
}
