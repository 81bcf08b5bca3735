package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/finsys-id/finance-api/repository/models"
	"gorm.io/gorm"
)

// latestForward returns the forward with the highest ID for the transaction,
// or nil when the chain is empty.
func latestForward(dbTx *gorm.DB, transactionID uint) (*models.TransactionForward, *RepositoryError) {
	var forward models.TransactionForward
	err := dbTx.Where("transaction_id = ?", transactionID).
		Order("forward_id DESC").
		First(&forward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err)
	}
	return &forward, nil
}

// findForward loads one forward of the transaction, with sender and receiver
// resolved.
func findForward(dbTx *gorm.DB, transactionID, forwardID uint) (*models.TransactionForward, *RepositoryError) {
	var forward models.TransactionForward
	err := dbTx.Preload("Sender").Preload("Receiver").
		Where("forward_id = ? AND transaction_id = ?", forwardID, transactionID).
		First(&forward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ruleError(ErrForwardNotFound, "Forward does not exist",
				fmt.Sprintf("forward %d does not exist on transaction %d", forwardID, transactionID))
		}
		return nil, dbError(err)
	}
	return &forward, nil
}

// requireLatest fails with NOT_LATEST_RECEIVER when forwardID is not the
// chain's latest member. The code doubles as the stale-forward signal: acting
// on an older forward means someone further down the chain has taken over.
func requireLatest(dbTx *gorm.DB, transactionID, forwardID uint) *RepositoryError {
	latest, repoErr := latestForward(dbTx, transactionID)
	if repoErr != nil {
		return repoErr
	}
	if latest == nil || latest.ID != forwardID {
		return ruleError(ErrNotLatestReceiver, "Forward is not the latest",
			fmt.Sprintf("forward %d is not the latest of transaction %d", forwardID, transactionID))
	}
	return nil
}

// runSerialized executes op while holding the transaction's mutex. A
// serialization conflict from the storage layer is retried once with a fresh
// reload before surfacing.
func (r *Repository) runSerialized(transactionID uint, op func() *RepositoryError) *RepositoryError {
	unlock := r.lockTransaction(transactionID)
	defer unlock()

	repoErr := op()
	if repoErr != nil && repoErr.Code == PgErrSerializationFail {
		r.logger.Warnw("Serialization conflict, retrying once", "transaction_id", transactionID)
		repoErr = op()
	}
	return repoErr
}

// CreateForward appends a new forward to the transaction's chain. The first
// forward may only be created by the transaction's creator; later forwards
// only by the latest forward's receiver, and only once that forward has been
// responded to.
func (r *Repository) CreateForward(transactionID, senderID, receiverID uint, comment *string) (*models.TransactionForward, *RepositoryError) {
	var created *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		var transaction models.Transaction
		err := dbTx.Where("transaction_id = ?", transactionID).First(&transaction).Error
		if err != nil {
			dbTx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ruleError(ErrTransactionNotFound, "Transaction does not exist",
					fmt.Sprintf("transaction %d does not exist", transactionID))
			}
			return dbError(err)
		}

		latest, repoErr := latestForward(dbTx, transactionID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if latest == nil {
			// No forwards yet, only the creator can start the chain
			if transaction.CreatorID != senderID {
				dbTx.Rollback()
				return ruleError(ErrNotTransactionCreator, "Only the creator can create the first forward",
					fmt.Sprintf("user %d is not the creator of transaction %d", senderID, transactionID))
			}
		} else {
			if latest.ReceiverID != senderID {
				dbTx.Rollback()
				return ruleError(ErrNotLatestReceiver, "Only the latest receiver can re-forward",
					fmt.Sprintf("user %d is not the receiver of forward %d", senderID, latest.ID))
			}
			if latest.Status == models.StatusWaiting {
				dbTx.Rollback()
				return ruleError(ErrForwardNotResponded, "Latest forward has not been responded to",
					fmt.Sprintf("forward %d of transaction %d is still waiting", latest.ID, transactionID))
			}
		}

		now := time.Now().UTC()
		forward := models.TransactionForward{
			TransactionID: transactionID,
			SenderID:      senderID,
			ReceiverID:    receiverID,
			SenderComment: comment,
			Status:        models.StatusWaiting,
			SenderSeen:    true,
			ReceiverSeen:  false,
			ForwardedAt:   now,
			UpdatedAt:     now,
		}
		if err := dbTx.Create(&forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}

		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}

		created, repoErr = findForward(r.db, transactionID, forward.ID)
		return repoErr
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return created, nil
}

// ListForwards returns the transaction's full chain in creation order
func (r *Repository) ListForwards(transactionID uint) ([]models.TransactionForward, *RepositoryError) {
	var forwards []models.TransactionForward
	err := r.db.Preload("Sender").Preload("Receiver").
		Where("transaction_id = ?", transactionID).
		Order("forward_id ASC").
		Find(&forwards).Error
	if err != nil {
		return nil, dbError(err)
	}
	return forwards, nil
}

// ListForwardsPaginated returns one page of the chain, newest hand-off first
func (r *Repository) ListForwardsPaginated(transactionID uint, page, perPage int) ([]models.TransactionForward, *Pagination, *RepositoryError) {
	query := r.db.Model(&models.TransactionForward{}).Where("transaction_id = ?", transactionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, dbError(err)
	}

	var forwards []models.TransactionForward
	err := query.Preload("Sender").Preload("Receiver").
		Order("forwarded_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&forwards).Error
	if err != nil {
		return nil, nil, dbError(err)
	}

	return forwards, newPagination(total, page, perPage), nil
}

// GetForward returns one forward of the transaction
func (r *Repository) GetForward(transactionID, forwardID uint) (*models.TransactionForward, *RepositoryError) {
	return findForward(r.db, transactionID, forwardID)
}

// UpdateSenderComment replaces the sender's comment before the receiver has
// read or responded to the forward. The editable window is enforced in the
// same database transaction as the write.
func (r *Repository) UpdateSenderComment(transactionID, forwardID, senderID uint, comment *string) (*models.TransactionForward, *RepositoryError) {
	var updated *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		forward, repoErr := findForward(dbTx, transactionID, forwardID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.SenderID != senderID {
			dbTx.Rollback()
			return ruleError(ErrNotForwardSender, "Only the sender can update the comment",
				fmt.Sprintf("user %d is not the sender of forward %d", senderID, forwardID))
		}
		if forward.Status != models.StatusWaiting {
			dbTx.Rollback()
			return ruleError(ErrForwardAlreadyResponded, "Forward has already been responded to",
				fmt.Sprintf("forward %d has status %s", forwardID, forward.Status))
		}
		if repoErr := checkRestriction(dbTx, transactionID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}

		forward.SenderComment = comment
		forward.UpdatedAt = time.Now().UTC()
		if err := dbTx.Save(forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		updated = forward
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return updated, nil
}

// Respond records the receiver's decision on the latest forward. The status
// leaves WAITING exactly once; a second response fails.
func (r *Repository) Respond(transactionID, forwardID, receiverID uint, status string, comment *string) (*models.TransactionForward, *RepositoryError) {
	if !models.ValidStatus(status) || status == models.StatusWaiting {
		return nil, ruleError(ErrInvalidStatus, "Invalid response status",
			fmt.Sprintf("status %q is not a valid response", status))
	}

	var updated *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		if repoErr := requireLatest(dbTx, transactionID, forwardID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		forward, repoErr := findForward(dbTx, transactionID, forwardID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.ReceiverID != receiverID {
			dbTx.Rollback()
			return ruleError(ErrNotForwardReceiver, "Only the receiver can respond",
				fmt.Sprintf("user %d is not the receiver of forward %d", receiverID, forwardID))
		}
		if forward.Status != models.StatusWaiting {
			dbTx.Rollback()
			return ruleError(ErrForwardAlreadyResponded, "Forward has already been responded to",
				fmt.Sprintf("forward %d has status %s", forwardID, forward.Status))
		}

		forward.Status = status
		forward.ReceiverComment = comment
		forward.MarkReceiverSeen()
		forward.ResetSenderSeen()
		forward.UpdatedAt = time.Now().UTC()
		if err := dbTx.Save(forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		updated = forward
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return updated, nil
}

// UpdateResponse edits an existing response before the sender has seen it.
// Once the sender reads the response, it is frozen.
func (r *Repository) UpdateResponse(transactionID, forwardID, receiverID uint, status string, comment *string) (*models.TransactionForward, *RepositoryError) {
	if !models.ValidStatus(status) || status == models.StatusWaiting {
		return nil, ruleError(ErrInvalidStatus, "Invalid response status",
			fmt.Sprintf("status %q is not a valid response", status))
	}

	var updated *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		if repoErr := requireLatest(dbTx, transactionID, forwardID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		forward, repoErr := findForward(dbTx, transactionID, forwardID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.ReceiverID != receiverID {
			dbTx.Rollback()
			return ruleError(ErrNotForwardReceiver, "Only the receiver can update the response",
				fmt.Sprintf("user %d is not the receiver of forward %d", receiverID, forwardID))
		}
		if forward.Status == models.StatusWaiting {
			dbTx.Rollback()
			return ruleError(ErrForwardNotResponded, "Forward has not been responded to yet",
				fmt.Sprintf("forward %d is still waiting", forwardID))
		}
		if forward.SenderSeen {
			dbTx.Rollback()
			return ruleError(ErrForwardAlreadySeen, "Sender has already seen the response",
				fmt.Sprintf("response of forward %d was already read by its sender", forwardID))
		}

		forward.Status = status
		forward.ReceiverComment = comment
		forward.MarkReceiverSeen()
		forward.ResetSenderSeen()
		forward.UpdatedAt = time.Now().UTC()
		if err := dbTx.Save(forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		updated = forward
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return updated, nil
}

// EditSenderComment replaces the sender's comment on the latest forward,
// regardless of status.
func (r *Repository) EditSenderComment(transactionID, forwardID, senderID uint, comment *string) (*models.TransactionForward, *RepositoryError) {
	var updated *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		forward, repoErr := findForward(dbTx, transactionID, forwardID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.SenderID != senderID {
			dbTx.Rollback()
			return ruleError(ErrNotForwardSender, "Only the sender can edit the comment",
				fmt.Sprintf("user %d is not the sender of forward %d", senderID, forwardID))
		}
		if repoErr := requireLatest(dbTx, transactionID, forwardID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}

		forward.SenderComment = comment
		forward.UpdatedAt = time.Now().UTC()
		if err := dbTx.Save(forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		updated = forward
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return updated, nil
}

// EditReceiverComment replaces the receiver's comment on the latest forward
// and forces the sender to re-review.
func (r *Repository) EditReceiverComment(transactionID, forwardID, receiverID uint, comment *string) (*models.TransactionForward, *RepositoryError) {
	var updated *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		forward, repoErr := findForward(dbTx, transactionID, forwardID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.ReceiverID != receiverID {
			dbTx.Rollback()
			return ruleError(ErrNotForwardReceiver, "Only the receiver can edit the comment",
				fmt.Sprintf("user %d is not the receiver of forward %d", receiverID, forwardID))
		}
		if repoErr := requireLatest(dbTx, transactionID, forwardID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}

		forward.ReceiverComment = comment
		forward.ResetSenderSeen()
		forward.UpdatedAt = time.Now().UTC()
		if err := dbTx.Save(forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		updated = forward
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return updated, nil
}

// DeleteForward retracts a forward that the receiver has not looked at yet,
// reverting the chain's latest pointer to the prior forward.
func (r *Repository) DeleteForward(transactionID, forwardID, senderID uint) (*models.TransactionForward, *RepositoryError) {
	var deleted *models.TransactionForward
	repoErr := r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		forward, repoErr := findForward(dbTx, transactionID, forwardID)
		if repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.SenderID != senderID {
			dbTx.Rollback()
			return ruleError(ErrNotForwardSender, "Only the sender can undo a forward",
				fmt.Sprintf("user %d is not the sender of forward %d", senderID, forwardID))
		}
		if repoErr := requireLatest(dbTx, transactionID, forwardID); repoErr != nil {
			dbTx.Rollback()
			return repoErr
		}
		if forward.ReceiverSeen {
			dbTx.Rollback()
			return ruleError(ErrForwardAlreadySeen, "Receiver has already seen the forward",
				fmt.Sprintf("forward %d was already read by its receiver", forwardID))
		}

		if err := dbTx.Delete(&models.TransactionForward{}, forwardID).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		deleted = forward
		return nil
	})
	if repoErr != nil {
		return nil, repoErr
	}
	return deleted, nil
}

// MarkForwardSeen records that a participant has observed the forward.
// Idempotent; not an error when the user is neither party.
func (r *Repository) MarkForwardSeen(transactionID, forwardID, userID uint) *RepositoryError {
	return r.runSerialized(transactionID, func() *RepositoryError {
		dbTx := r.db.Begin()

		var forward models.TransactionForward
		err := dbTx.Where("forward_id = ? AND transaction_id = ?", forwardID, transactionID).
			First(&forward).Error
		if err != nil {
			dbTx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return dbError(err)
		}

		changed := false
		if forward.SenderID == userID {
			changed = forward.MarkSenderSeen()
		} else if forward.ReceiverID == userID {
			changed = forward.MarkReceiverSeen()
		}
		if !changed {
			dbTx.Rollback()
			return nil
		}

		forward.UpdatedAt = time.Now().UTC()
		if err := dbTx.Save(&forward).Error; err != nil {
			dbTx.Rollback()
			return dbError(err)
		}
		if err := dbTx.Commit().Error; err != nil {
			return dbError(err)
		}
		return nil
	})
}
