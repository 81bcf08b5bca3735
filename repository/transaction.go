package repository

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/finsys-id/finance-api/repository/models"
	"gorm.io/gorm"
)

// Transaction list query modes
const (
	QueryAll      = "all"
	QueryInbox    = "inbox"
	QueryOutgoing = "outgoing"
	QueryArchive  = "archive"
)

// Pagination describes one page of a list result
type Pagination struct {
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Prev        *int  `json:"prev"`
	Next        *int  `json:"next"`
}

func newPagination(total int64, page, perPage int) *Pagination {
	lastPage := int(math.Ceil(float64(total) / float64(perPage)))
	p := &Pagination{
		Total:       total,
		LastPage:    lastPage,
		CurrentPage: page,
		PerPage:     perPage,
	}
	if page > 1 {
		prev := page - 1
		p.Prev = &prev
	}
	if page < lastPage {
		next := page + 1
		p.Next = &next
	}
	return p
}

// TransactionUpdate carries the mutable transaction fields. Nil pointers
// leave the current value untouched; a non-nil DocumentIDs replaces the
// attachment set.
type TransactionUpdate struct {
	Title       *string
	Description *string
	TypeName    *string
	Priority    string
	Fulfilled   bool
	DocumentIDs *[]string
}

// CreateTransaction stores a new transaction with its initial attachments,
// all attached by the creator.
func (r *Repository) CreateTransaction(title, description string, typeName *string, priority string, creatorID uint, documentIDs []string) (*models.Transaction, *RepositoryError) {
	dbTx := r.db.Begin()

	transaction := models.Transaction{
		Title:       title,
		Description: description,
		TypeName:    typeName,
		Priority:    priority,
		CreatorID:   creatorID,
		CreatedAt:   time.Now().UTC(),
		Fulfilled:   false,
	}
	if err := dbTx.Create(&transaction).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err)
	}

	for _, docID := range documentIDs {
		attachment := models.TransactionDocument{
			TransactionID: transaction.ID,
			DocumentID:    docID,
			AttachedBy:    creatorID,
			AttachedAt:    time.Now().UTC(),
		}
		if err := dbTx.Create(&attachment).Error; err != nil {
			dbTx.Rollback()
			return nil, dbError(err)
		}
	}

	if err := dbTx.Commit().Error; err != nil {
		return nil, dbError(err)
	}
	return r.GetTransaction(transaction.ID)
}

// GetTransaction loads a transaction with its forwards and attachments
func (r *Repository) GetTransaction(id uint) (*models.Transaction, *RepositoryError) {
	var transaction models.Transaction
	err := r.db.Preload("Documents").Preload("Documents.Document").Preload("Forwards").
		Where("transaction_id = ?", id).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ruleError(ErrTransactionNotFound, "Transaction does not exist",
				fmt.Sprintf("transaction %d does not exist", id))
		}
		return nil, dbError(err)
	}
	return &transaction, nil
}

// latestStatusSubquery yields the status of a transaction's latest forward,
// or NULL when the chain is empty.
const latestStatusSubquery = "(SELECT f.status FROM transaction_forwards f WHERE f.transaction_id = transactions.transaction_id ORDER BY f.forward_id DESC LIMIT 1)"

// listFilter builds a fresh filtered query for the given mode. Inbox holds
// what the user must act on, outgoing what they are waiting on, archive
// everything they ever touched.
func (r *Repository) listFilter(query string, userID uint) *gorm.DB {
	latestID := "(SELECT MAX(f.forward_id) FROM transaction_forwards f WHERE f.transaction_id = transactions.transaction_id)"

	db := r.db.Model(&models.Transaction{})
	switch query {
	case QueryAll:
		return db
	case QueryInbox:
		return db.Where(
			"EXISTS (SELECT 1 FROM transaction_forwards lf WHERE lf.transaction_id = transactions.transaction_id AND lf.forward_id = "+latestID+" AND lf.receiver_id = ? AND lf.sender_seen = ?)"+
				" OR (NOT EXISTS (SELECT 1 FROM transaction_forwards af WHERE af.transaction_id = transactions.transaction_id) AND transactions.creator_id = ?)",
			userID, false, userID)
	case QueryOutgoing:
		return db.Where(
			"EXISTS (SELECT 1 FROM transaction_forwards lf WHERE lf.transaction_id = transactions.transaction_id AND lf.forward_id = "+latestID+" AND lf.sender_id = ? AND lf.sender_seen = ?)",
			userID, true)
	default: // archive
		return db.Where(
			"transactions.creator_id = ? OR EXISTS (SELECT 1 FROM transaction_forwards af WHERE af.transaction_id = transactions.transaction_id AND (af.sender_id = ? OR af.receiver_id = ?))",
			userID, userID, userID)
	}
}

// FindTransactions returns one page of transactions visible to the user
// under the given query mode, with pagination meta and a summary of latest
// forward statuses across the whole result set.
func (r *Repository) FindTransactions(query string, userID uint, isAdmin bool, page, perPage int) ([]models.Transaction, *Pagination, map[string]int, *RepositoryError) {
	if query == QueryAll && !isAdmin {
		return nil, nil, nil, ruleError(ErrMissingRole, "Admin role required",
			fmt.Sprintf("user %d may not list all transactions", userID))
	}

	var total int64
	if err := r.listFilter(query, userID).Count(&total).Error; err != nil {
		return nil, nil, nil, dbError(err)
	}

	var transactions []models.Transaction
	err := r.listFilter(query, userID).
		Preload("Documents").Preload("Forwards").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&transactions).Error
	if err != nil {
		return nil, nil, nil, dbError(err)
	}

	// Summary counts come from the full filtered set, not just this page
	var statuses []struct{ Status *string }
	err = r.listFilter(query, userID).
		Select(latestStatusSubquery + " AS status").
		Scan(&statuses).Error
	if err != nil {
		return nil, nil, nil, dbError(err)
	}

	summary := map[string]int{
		models.StatusWaiting:      0,
		models.StatusApproved:     0,
		models.StatusRejected:     0,
		models.StatusNeedsEditing: 0,
		"NO_FORWARD":              0,
	}
	for _, s := range statuses {
		if s.Status == nil {
			summary["NO_FORWARD"]++
		} else {
			summary[*s.Status]++
		}
	}

	return transactions, newPagination(total, page, perPage), summary, nil
}

// IsParticipant reports whether the user is the transaction's creator or a
// party of its latest forward. With no forwards only the creator qualifies.
func (r *Repository) IsParticipant(transactionID, userID uint) (bool, *RepositoryError) {
	var transaction models.Transaction
	err := r.db.Where("transaction_id = ?", transactionID).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, dbError(err)
	}
	if transaction.CreatorID == userID {
		return true, nil
	}

	latest, repoErr := latestForward(r.db, transactionID)
	if repoErr != nil {
		return false, repoErr
	}
	if latest != nil && (latest.SenderID == userID || latest.ReceiverID == userID) {
		return true, nil
	}
	return false, nil
}

// IsLatestReceiver reports whether the user is the receiver of the
// transaction's latest forward.
func (r *Repository) IsLatestReceiver(transactionID, userID uint) (bool, *RepositoryError) {
	latest, repoErr := latestForward(r.db, transactionID)
	if repoErr != nil {
		return false, repoErr
	}
	return latest != nil && latest.ReceiverID == userID, nil
}

// IsAttacher reports whether the user originally attached the document
func (r *Repository) IsAttacher(transactionID uint, documentID string, userID uint) (bool, *RepositoryError) {
	var attachment models.TransactionDocument
	err := r.db.Where("transaction_id = ? AND document_id = ?", transactionID, documentID).
		First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, dbError(err)
	}
	return attachment.AttachedBy == userID, nil
}

// CheckRestriction is the single source of truth for the editable window:
// documents and sender comments may change only while no forward exists, or
// the latest forward is still WAITING and unseen by its receiver. Once the
// receiver has looked at or acted on the forward, the content freezes so
// neither party is blindsided by silent edits mid-review.
func (r *Repository) CheckRestriction(transactionID uint) *RepositoryError {
	return checkRestriction(r.db, transactionID)
}

// checkRestriction evaluates the editable window on the given handle so
// mutations can run it inside their own database transaction.
func checkRestriction(dbTx *gorm.DB, transactionID uint) *RepositoryError {
	var transaction models.Transaction
	err := dbTx.Where("transaction_id = ?", transactionID).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ruleError(ErrTransactionNotFound, "Transaction does not exist",
				fmt.Sprintf("transaction %d does not exist", transactionID))
		}
		return dbError(err)
	}

	latest, repoErr := latestForward(dbTx, transactionID)
	if repoErr != nil {
		return repoErr
	}
	if latest == nil {
		return nil // no forwards, no restriction
	}
	if latest.Status != models.StatusWaiting {
		return ruleError(ErrForwardAlreadyResponded, "Latest forward has been responded to",
			fmt.Sprintf("forward %d of transaction %d has status %s", latest.ID, transactionID, latest.Status))
	}
	if latest.ReceiverSeen {
		return ruleError(ErrForwardAlreadySeen, "Latest forward has been seen by its receiver",
			fmt.Sprintf("forward %d of transaction %d was already read", latest.ID, transactionID))
	}
	return nil
}

// MarkTransactionSeen flips the caller's seen flag on the latest forward.
// Invoked whenever a participant retrieves the transaction. Idempotent.
func (r *Repository) MarkTransactionSeen(transactionID, userID uint) *RepositoryError {
	return r.runSerialized(transactionID, func() *RepositoryError {
		latest, repoErr := latestForward(r.db, transactionID)
		if repoErr != nil {
			return repoErr
		}
		if latest == nil {
			return nil
		}

		changed := false
		if latest.SenderID == userID {
			changed = latest.MarkSenderSeen()
		} else if latest.ReceiverID == userID {
			changed = latest.MarkReceiverSeen()
		}
		if !changed {
			return nil
		}
		if err := r.db.Save(latest).Error; err != nil {
			return dbError(err)
		}
		return nil
	})
}

// resetSenderSeen forces the sender of the latest forward to re-review.
// Only takes effect when the acting user is that forward's receiver and the
// sender had already seen it. Runs on the caller's database transaction so
// the reset commits or rolls back together with the triggering mutation.
func resetSenderSeen(dbTx *gorm.DB, transactionID, actingUserID uint) *RepositoryError {
	latest, repoErr := latestForward(dbTx, transactionID)
	if repoErr != nil {
		return repoErr
	}
	if latest == nil || latest.ReceiverID != actingUserID {
		return nil
	}
	if !latest.ResetSenderSeen() {
		return nil
	}
	if err := dbTx.Save(latest).Error; err != nil {
		return dbError(err)
	}
	return nil
}

// UpdateTransaction applies field updates and, when requested, replaces the
// attachment set with documents attached by the acting user. The editable
// window is enforced inside the same database transaction as the writes, so
// a concurrent Respond cannot slip in between the check and the update.
func (r *Repository) UpdateTransaction(id uint, update TransactionUpdate, userID uint) (*models.Transaction, *RepositoryError) {
	repoErr := r.runSerialized(id, func() *RepositoryError {
		dbTx := r.db.Begin()

		if repoErr := checkRestriction(dbTx, id); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}

		var transaction models.Transaction
		err := dbTx.Where("transaction_id = ?", id).First(&transaction).Error
		if err != nil {
			dbTx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ruleError(ErrTransactionNotFound, "Transaction does not exist",
					fmt.Sprintf("transaction %d does not exist", id))
			}
			return dbError(err)
		}

		if update.Title != nil {
			transaction.Title = *update.Title
		}
		if update.Description != nil {
			transaction.Description = *update.Description
		}
		if update.TypeName != nil {
			transaction.TypeName = update.TypeName
		}
		transaction.Priority = update.Priority
		transaction.Fulfilled = update.Fulfilled

		if err := dbTx.Save(&transaction).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}

		if update.DocumentIDs != nil {
			err := dbTx.Where("transaction_id = ?", id).Delete(&models.TransactionDocument{}).Error
			if err != nil {
				dbTx.Rollback()
				return dbError(err)
			}
			for _, docID := range *update.DocumentIDs {
				attachment := models.TransactionDocument{
					TransactionID: id,
					DocumentID:    docID,
					AttachedBy:    userID,
					AttachedAt:    time.Now().UTC(),
				}
				if err := dbTx.Create(&attachment).Error; err != nil {
					dbTx.Rollback()
					return dbError(err)
				}
			}
		}

		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return r.GetTransaction(id)
}

// DeleteTransaction removes the transaction along with its forward chain and
// attachments.
func (r *Repository) DeleteTransaction(id uint) (*models.Transaction, *RepositoryError) {
	transaction, repoErr := r.GetTransaction(id)
	if repoErr != nil {
		return nil, repoErr
	}

	dbTx := r.db.Begin()
	if err := dbTx.Where("transaction_id = ?", id).Delete(&models.TransactionForward{}).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err)
	}
	if err := dbTx.Where("transaction_id = ?", id).Delete(&models.TransactionDocument{}).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err)
	}
	if err := dbTx.Delete(&models.Transaction{}, id).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, dbError(err)
	}
	return transaction, nil
}

// AttachDocument links a document to the transaction and forces the sender
// to re-review when the receiver did the attaching. A repeat attach is a
// no-op. The window check, the write and the seen reset share one database
// transaction under the per-transaction lock, matching the forward chain
// mutations.
func (r *Repository) AttachDocument(transactionID uint, documentID string, userID uint) (*models.Transaction, *RepositoryError) {
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		if repoErr := checkRestriction(dbTx, transactionID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}

		var existing models.TransactionDocument
		err := dbTx.Where("transaction_id = ? AND document_id = ?", transactionID, documentID).
			First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				dbTx.Rollback()
				return dbError(err)
			}
			attachment := models.TransactionDocument{
				TransactionID: transactionID,
				DocumentID:    documentID,
				AttachedBy:    userID,
				AttachedAt:    time.Now().UTC(),
			}
			if err := dbTx.Create(&attachment).Error; err != nil {
				dbTx.Rollback()
				return dbError(err)
			}
		}

		if repoErr := resetSenderSeen(dbTx, transactionID, userID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return r.GetTransaction(transactionID)
}

// DetachDocument removes an attachment. Only the original attacher may
// detach, and only attachments made during the current latest forward;
// anything older is inherited and frozen.
func (r *Repository) DetachDocument(transactionID uint, documentID string, userID uint) (*models.Transaction, *RepositoryError) {
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		if repoErr := checkRestriction(dbTx, transactionID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}

		var existing models.TransactionDocument
		err := dbTx.Where("transaction_id = ? AND document_id = ?", transactionID, documentID).
			First(&existing).Error
		if err != nil {
			dbTx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // nothing attached, nothing to detach
			}
			return dbError(err)
		}

		if existing.AttachedBy != userID {
			dbTx.Rollback()
			return ruleError(ErrNotDocumentAttacher, "Only the attacher can detach a document",
				fmt.Sprintf("document %s was attached by user %d", documentID, existing.AttachedBy))
		}

		latest, repoErr := latestForward(dbTx, transactionID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if latest != nil {
			if existing.AttachedAt.Before(latest.ForwardedAt) {
				dbTx.Rollback()
				return ruleError(ErrNotTransactionParticipant, "Attachment predates the current forward",
					fmt.Sprintf("document %s was attached before forward %d began", documentID, latest.ID))
			}
			if latest.SenderID != userID && latest.ReceiverID != userID {
				dbTx.Rollback()
				return ruleError(ErrNotTransactionParticipant, "Not a party of the latest forward",
					fmt.Sprintf("user %d is not sender or receiver of forward %d", userID, latest.ID))
			}
		}

		err = dbTx.Where("transaction_id = ? AND document_id = ?", transactionID, documentID).
			Delete(&models.TransactionDocument{}).Error
		if err != nil {
			dbTx.Rollback()
			return dbError(err)
		}

		if repoErr := resetSenderSeen(dbTx, transactionID, userID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return r.GetTransaction(transactionID)
}
