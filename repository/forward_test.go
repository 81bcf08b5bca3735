package repository

import (
	"sync"
	"testing"

	"github.com/finsys-id/finance-api/repository/models"
	"github.com/stretchr/testify/require"
)

func TestCreateFirstForwardRequiresCreator(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	_, repoErr := repo.CreateForward(transaction.ID, bob.ID, alice.ID, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotTransactionCreator, repoErr.Code)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, strPtr("please review"))
	require.Nil(t, repoErr)
	require.Equal(t, models.StatusWaiting, forward.Status)
	require.True(t, forward.SenderSeen)
	require.False(t, forward.ReceiverSeen)
	require.Equal(t, alice.ID, forward.SenderID)
	require.Equal(t, bob.ID, forward.ReceiverID)
}

func TestCreateForwardOnMissingTransaction(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")

	_, repoErr := repo.CreateForward(9999, alice.ID, alice.ID+1, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrTransactionNotFound, repoErr.Code)
}

func TestCannotReforwardWhileWaiting(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	carol := newTestUser(t, repo, "carol")
	transaction := newTestTransaction(t, repo, alice.ID)

	_, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// Bob has not responded yet, so he cannot pass the transaction on
	_, repoErr = repo.CreateForward(transaction.ID, bob.ID, carol.ID, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardNotResponded, repoErr.Code)

	// Carol is not the latest receiver at all
	_, repoErr = repo.CreateForward(transaction.ID, carol.ID, alice.ID, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotLatestReceiver, repoErr.Code)
}

func TestRespondFlipsSeenFlagsOnce(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	responded, repoErr := repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, strPtr("looks good"))
	require.Nil(t, repoErr)
	require.Equal(t, models.StatusApproved, responded.Status)
	require.True(t, responded.ReceiverSeen)
	require.False(t, responded.SenderSeen)

	// The status leaves WAITING exactly once
	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusRejected, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadyResponded, repoErr.Code)
}

func TestRespondGuards(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	carol := newTestUser(t, repo, "carol")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, "MAYBE", nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrInvalidStatus, repoErr.Code)

	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusWaiting, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrInvalidStatus, repoErr.Code)

	_, repoErr = repo.Respond(transaction.ID, forward.ID, carol.ID, models.StatusApproved, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotForwardReceiver, repoErr.Code)

	_, repoErr = repo.Respond(transaction.ID, forward.ID+1, bob.ID, models.StatusApproved, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotLatestReceiver, repoErr.Code)
}

func TestForwardChainHandOff(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	carol := newTestUser(t, repo, "carol")
	transaction := newTestTransaction(t, repo, alice.ID)

	f1, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, f1.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)

	// After responding, only Bob may append the next forward
	f2, repoErr := repo.CreateForward(transaction.ID, bob.ID, carol.ID, strPtr("next step"))
	require.Nil(t, repoErr)
	require.Greater(t, f2.ID, f1.ID)

	// Acting on the superseded forward is rejected as stale
	_, repoErr = repo.Respond(transaction.ID, f1.ID, bob.ID, models.StatusRejected, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotLatestReceiver, repoErr.Code)

	forwards, repoErr := repo.ListForwards(transaction.ID)
	require.Nil(t, repoErr)
	require.Len(t, forwards, 2)
	require.Equal(t, f1.ID, forwards[0].ID)
	require.Equal(t, f2.ID, forwards[1].ID)
}

func TestUpdateResponseFreezesOnceSenderReads(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// A response must exist before it can be edited
	_, repoErr = repo.UpdateResponse(transaction.ID, forward.ID, bob.ID, models.StatusRejected, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardNotResponded, repoErr.Code)

	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)

	// Sender has not read the response, Bob may still amend it
	updated, repoErr := repo.UpdateResponse(transaction.ID, forward.ID, bob.ID, models.StatusNeedsEditing, strPtr("missing receipt"))
	require.Nil(t, repoErr)
	require.Equal(t, models.StatusNeedsEditing, updated.Status)

	// Alice reads the response, freezing it
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, alice.ID))
	_, repoErr = repo.UpdateResponse(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadySeen, repoErr.Code)
}

func TestDeleteForwardOnlyWhileUnseen(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	_, repoErr = repo.DeleteForward(transaction.ID, forward.ID, bob.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotForwardSender, repoErr.Code)

	// Undo reverts the chain to the no-forward state
	_, repoErr = repo.DeleteForward(transaction.ID, forward.ID, alice.ID)
	require.Nil(t, repoErr)
	forwards, repoErr := repo.ListForwards(transaction.ID)
	require.Nil(t, repoErr)
	require.Empty(t, forwards)

	// Alice can start the chain again as creator
	forward, repoErr = repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// Once the receiver has looked at it, the forward cannot be retracted
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, bob.ID))
	_, repoErr = repo.DeleteForward(transaction.ID, forward.ID, alice.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadySeen, repoErr.Code)
}

func TestConcurrentRespondsSingleWinner(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")

	// Race two responses on the same WAITING forward. The per-transaction
	// lock must let exactly one through; the loser sees a responded forward.
	for i := 0; i < 20; i++ {
		transaction := newTestTransaction(t, repo, alice.ID)
		forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
		require.Nil(t, repoErr)

		results := make([]*RepositoryError, 2)
		statuses := []string{models.StatusApproved, models.StatusRejected}
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, results[j] = repo.Respond(transaction.ID, forward.ID, bob.ID, statuses[j], nil)
			}(j)
		}
		wg.Wait()

		winners := 0
		for _, repoErr := range results {
			if repoErr == nil {
				winners++
				continue
			}
			require.Equal(t, ErrForwardAlreadyResponded, repoErr.Code)
		}
		require.Equal(t, 1, winners)

		current, repoErr := repo.GetForward(transaction.ID, forward.ID)
		require.Nil(t, repoErr)
		require.NotEqual(t, models.StatusWaiting, current.Status)
	}
}

func TestDeleteSupersededForwardReportsStale(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	carol := newTestUser(t, repo, "carol")
	transaction := newTestTransaction(t, repo, alice.ID)

	f1, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, f1.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.CreateForward(transaction.ID, bob.ID, carol.ID, nil)
	require.Nil(t, repoErr)

	// Staleness outranks the seen flag: the superseded forward was read by
	// Bob, but retracting it fails as stale, not as already seen.
	_, repoErr = repo.DeleteForward(transaction.ID, f1.ID, alice.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotLatestReceiver, repoErr.Code)
}

func TestMarkForwardSeenIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	carol := newTestUser(t, repo, "carol")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// A third party reading the forward changes nothing
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, carol.ID))
	current, repoErr := repo.GetForward(transaction.ID, forward.ID)
	require.Nil(t, repoErr)
	require.False(t, current.ReceiverSeen)

	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, bob.ID))
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, bob.ID))
	current, repoErr = repo.GetForward(transaction.ID, forward.ID)
	require.Nil(t, repoErr)
	require.True(t, current.ReceiverSeen)
}

func TestUpdateSenderCommentWhileWaiting(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, strPtr("draft"))
	require.Nil(t, repoErr)

	updated, repoErr := repo.UpdateSenderComment(transaction.ID, forward.ID, alice.ID, strPtr("final"))
	require.Nil(t, repoErr)
	require.Equal(t, "final", *updated.SenderComment)

	_, repoErr = repo.UpdateSenderComment(transaction.ID, forward.ID, bob.ID, strPtr("hijack"))
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotForwardSender, repoErr.Code)

	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)

	_, repoErr = repo.UpdateSenderComment(transaction.ID, forward.ID, alice.ID, strPtr("too late"))
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadyResponded, repoErr.Code)
}

func TestUpdateSenderCommentFrozenOnceRead(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, strPtr("draft"))
	require.Nil(t, repoErr)

	// Bob reads the forward without responding; the hand-off note freezes
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, bob.ID))
	_, repoErr = repo.UpdateSenderComment(transaction.ID, forward.ID, alice.ID, strPtr("revised"))
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadySeen, repoErr.Code)
}

func TestEditCommentsOnLatestForward(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, strPtr("approved"))
	require.Nil(t, repoErr)

	// Comments stay editable after the response, status does not gate them
	updated, repoErr := repo.EditSenderComment(transaction.ID, forward.ID, alice.ID, strPtr("context added"))
	require.Nil(t, repoErr)
	require.Equal(t, "context added", *updated.SenderComment)

	// Alice reads the response; Bob editing his comment forces a re-review
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, alice.ID))
	updated, repoErr = repo.EditReceiverComment(transaction.ID, forward.ID, bob.ID, strPtr("actually, one concern"))
	require.Nil(t, repoErr)
	require.False(t, updated.SenderSeen)

	_, repoErr = repo.EditReceiverComment(transaction.ID, forward.ID, alice.ID, strPtr("not mine"))
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotForwardReceiver, repoErr.Code)
}

func TestForwardsPaginated(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	f1, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, f1.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.CreateForward(transaction.ID, bob.ID, alice.ID, nil)
	require.Nil(t, repoErr)

	forwards, meta, repoErr := repo.ListForwardsPaginated(transaction.ID, 1, 1)
	require.Nil(t, repoErr)
	require.Len(t, forwards, 1)
	require.Equal(t, int64(2), meta.Total)
	require.Equal(t, 2, meta.LastPage)
	require.Nil(t, meta.Prev)
	require.NotNil(t, meta.Next)
}
