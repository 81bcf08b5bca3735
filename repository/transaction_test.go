package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/finsys-id/finance-api/repository/models"
	"github.com/stretchr/testify/require"
)

func TestCheckRestrictionWindow(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	// No forwards, the transaction is fully editable
	require.Nil(t, repo.CheckRestriction(transaction.ID))

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// Still waiting and unread, the window stays open
	require.Nil(t, repo.CheckRestriction(transaction.ID))

	// Bob reads the forward, the content freezes
	require.Nil(t, repo.MarkForwardSeen(transaction.ID, forward.ID, bob.ID))
	restricted := repo.CheckRestriction(transaction.ID)
	require.NotNil(t, restricted)
	require.Equal(t, ErrForwardAlreadySeen, restricted.Code)

	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)
	restricted = repo.CheckRestriction(transaction.ID)
	require.NotNil(t, restricted)
	require.Equal(t, ErrForwardAlreadyResponded, restricted.Code)
}

func TestCheckRestrictionMissingTransaction(t *testing.T) {
	repo := newTestRepository(t)
	repoErr := repo.CheckRestriction(4242)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrTransactionNotFound, repoErr.Code)
}

func TestIsParticipant(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	carol := newTestUser(t, repo, "carol")
	transaction := newTestTransaction(t, repo, alice.ID)

	ok, repoErr := repo.IsParticipant(transaction.ID, alice.ID)
	require.Nil(t, repoErr)
	require.True(t, ok)
	ok, repoErr = repo.IsParticipant(transaction.ID, bob.ID)
	require.Nil(t, repoErr)
	require.False(t, ok)

	_, repoErr = repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	ok, repoErr = repo.IsParticipant(transaction.ID, bob.ID)
	require.Nil(t, repoErr)
	require.True(t, ok)
	ok, repoErr = repo.IsParticipant(transaction.ID, carol.ID)
	require.Nil(t, repoErr)
	require.False(t, ok)

	isReceiver, repoErr := repo.IsLatestReceiver(transaction.ID, bob.ID)
	require.Nil(t, repoErr)
	require.True(t, isReceiver)
	isReceiver, repoErr = repo.IsLatestReceiver(transaction.ID, alice.ID)
	require.Nil(t, repoErr)
	require.False(t, isReceiver)
}

func TestMarkTransactionSeenRestoresOutgoing(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)

	// Alice has not reviewed the response yet
	current, repoErr := repo.GetForward(transaction.ID, forward.ID)
	require.Nil(t, repoErr)
	require.False(t, current.SenderSeen)

	require.Nil(t, repo.MarkTransactionSeen(transaction.ID, alice.ID))
	current, repoErr = repo.GetForward(transaction.ID, forward.ID)
	require.Nil(t, repoErr)
	require.True(t, current.SenderSeen)

	// Repeat reads change nothing
	require.Nil(t, repo.MarkTransactionSeen(transaction.ID, alice.ID))
}

func TestFindTransactionsQueryModes(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	admin, repoErr := repo.CreateUser("root", "secret", models.RoleAdmin, nil)
	require.Nil(t, repoErr)

	drafted := newTestTransaction(t, repo, alice.ID)
	routed := newTestTransaction(t, repo, alice.ID)
	forward, repoErr := repo.CreateForward(routed.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// Alice's inbox holds only the transaction she has not routed yet
	inbox, _, _, repoErr := repo.FindTransactions(QueryInbox, alice.ID, false, 1, 20)
	require.Nil(t, repoErr)
	require.Len(t, inbox, 1)
	require.Equal(t, drafted.ID, inbox[0].ID)

	// The routed one sits in her outgoing list while Bob decides
	outgoing, _, _, repoErr := repo.FindTransactions(QueryOutgoing, alice.ID, false, 1, 20)
	require.Nil(t, repoErr)
	require.Len(t, outgoing, 1)
	require.Equal(t, routed.ID, outgoing[0].ID)

	// Bob responds, taking the transaction out of Alice's outgoing list
	_, repoErr = repo.Respond(routed.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)
	outgoing, _, _, repoErr = repo.FindTransactions(QueryOutgoing, alice.ID, false, 1, 20)
	require.Nil(t, repoErr)
	require.Empty(t, outgoing)

	// Archive keeps every chain the user touched
	archive, _, summary, repoErr := repo.FindTransactions(QueryArchive, alice.ID, false, 1, 20)
	require.Nil(t, repoErr)
	require.Len(t, archive, 2)
	require.Equal(t, 1, summary[models.StatusApproved])
	require.Equal(t, 1, summary["NO_FORWARD"])

	archive, _, _, repoErr = repo.FindTransactions(QueryArchive, bob.ID, false, 1, 20)
	require.Nil(t, repoErr)
	require.Len(t, archive, 1)

	// Only admins may list everything
	_, _, _, repoErr = repo.FindTransactions(QueryAll, alice.ID, false, 1, 20)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrMissingRole, repoErr.Code)

	all, meta, _, repoErr := repo.FindTransactions(QueryAll, admin.ID, true, 1, 20)
	require.Nil(t, repoErr)
	require.Len(t, all, 2)
	require.Equal(t, int64(2), meta.Total)
}

func TestUpdateTransactionFields(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	transaction := newTestTransaction(t, repo, alice.ID)

	update := TransactionUpdate{
		Title:     strPtr("Standing desks"),
		Priority:  models.PriorityHigh,
		Fulfilled: true,
	}
	updated, repoErr := repo.UpdateTransaction(transaction.ID, update, alice.ID)
	require.Nil(t, repoErr)
	require.Equal(t, "Standing desks", updated.Title)
	require.Equal(t, models.PriorityHigh, updated.Priority)
	require.True(t, updated.Fulfilled)
	// Untouched fields keep their values
	require.Equal(t, transaction.Description, updated.Description)
}

func TestUpdateTransactionBlockedOutsideWindow(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)

	update := TransactionUpdate{
		Title:     strPtr("Standing desks"),
		Priority:  transaction.Priority,
		Fulfilled: transaction.Fulfilled,
	}
	_, repoErr = repo.UpdateTransaction(transaction.ID, update, alice.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadyResponded, repoErr.Code)

	// The rejected update left no trace
	current, repoErr := repo.GetTransaction(transaction.ID)
	require.Nil(t, repoErr)
	require.Equal(t, transaction.Title, current.Title)
}

func TestDeleteTransactionRemovesChain(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)
	_, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	_, repoErr = repo.DeleteTransaction(transaction.ID)
	require.Nil(t, repoErr)

	_, repoErr = repo.GetTransaction(transaction.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrTransactionNotFound, repoErr.Code)

	forwards, repoErr := repo.ListForwards(transaction.ID)
	require.Nil(t, repoErr)
	require.Empty(t, forwards)
}

func TestAttachDocumentResetsSenderSeen(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	doc, repoErr := repo.StoreDocument("invoice.pdf", []byte("pdf bytes"), bob.ID)
	require.Nil(t, repoErr)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	updated, repoErr := repo.AttachDocument(transaction.ID, doc.ID, bob.ID)
	require.Nil(t, repoErr)
	require.Len(t, updated.Documents, 1)

	// The receiver changed the content, the sender must look again
	current, repoErr := repo.GetForward(transaction.ID, forward.ID)
	require.Nil(t, repoErr)
	require.False(t, current.SenderSeen)

	// Re-attaching the same document is a no-op
	updated, repoErr = repo.AttachDocument(transaction.ID, doc.ID, bob.ID)
	require.Nil(t, repoErr)
	require.Len(t, updated.Documents, 1)
}

func TestAttachDocumentBlockedOutsideWindow(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	doc, repoErr := repo.StoreDocument("invoice.pdf", []byte("pdf bytes"), alice.ID)
	require.Nil(t, repoErr)

	forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
	require.Nil(t, repoErr)

	_, repoErr = repo.AttachDocument(transaction.ID, doc.ID, alice.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrForwardAlreadyResponded, repoErr.Code)
}

func TestAttachDocumentRacesRespond(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")

	// The window check and the attachment write share one unit under the
	// per-transaction lock, so a document either lands before the response
	// or the attach fails closed. It never lands on a responded forward.
	for i := 0; i < 20; i++ {
		transaction := newTestTransaction(t, repo, alice.ID)
		doc, repoErr := repo.StoreDocument("invoice.pdf", []byte("pdf bytes"), alice.ID)
		require.Nil(t, repoErr)
		forward, repoErr := repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
		require.Nil(t, repoErr)

		var attachErr, respondErr *RepositoryError
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, attachErr = repo.AttachDocument(transaction.ID, doc.ID, alice.ID)
		}()
		go func() {
			defer wg.Done()
			_, respondErr = repo.Respond(transaction.ID, forward.ID, bob.ID, models.StatusApproved, nil)
		}()
		wg.Wait()

		require.Nil(t, respondErr)
		current, repoErr := repo.GetTransaction(transaction.ID)
		require.Nil(t, repoErr)
		if attachErr != nil {
			require.Equal(t, ErrForwardAlreadyResponded, attachErr.Code)
			require.Empty(t, current.Documents)
		} else {
			require.Len(t, current.Documents, 1)
		}
	}
}

func TestDetachDocumentRules(t *testing.T) {
	repo := newTestRepository(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")
	transaction := newTestTransaction(t, repo, alice.ID)

	inherited, repoErr := repo.StoreDocument("quote.pdf", []byte("quote"), alice.ID)
	require.Nil(t, repoErr)
	_, repoErr = repo.AttachDocument(transaction.ID, inherited.ID, alice.ID)
	require.Nil(t, repoErr)

	// With no forwards the attacher may freely detach and re-attach
	_, repoErr = repo.DetachDocument(transaction.ID, inherited.ID, alice.ID)
	require.Nil(t, repoErr)
	_, repoErr = repo.AttachDocument(transaction.ID, inherited.ID, alice.ID)
	require.Nil(t, repoErr)

	time.Sleep(10 * time.Millisecond)
	_, repoErr = repo.CreateForward(transaction.ID, alice.ID, bob.ID, nil)
	require.Nil(t, repoErr)

	// Bob did not attach the document
	_, repoErr = repo.DetachDocument(transaction.ID, inherited.ID, bob.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotDocumentAttacher, repoErr.Code)

	// Alice did, but the attachment predates the current forward and is frozen
	_, repoErr = repo.DetachDocument(transaction.ID, inherited.ID, alice.ID)
	require.NotNil(t, repoErr)
	require.Equal(t, ErrNotTransactionParticipant, repoErr.Code)

	// An attachment made during the current forward can still be removed
	fresh, repoErr := repo.StoreDocument("receipt.pdf", []byte("receipt"), bob.ID)
	require.Nil(t, repoErr)
	time.Sleep(10 * time.Millisecond)
	_, repoErr = repo.AttachDocument(transaction.ID, fresh.ID, bob.ID)
	require.Nil(t, repoErr)
	updated, repoErr := repo.DetachDocument(transaction.ID, fresh.ID, bob.ID)
	require.Nil(t, repoErr)
	require.Len(t, updated.Documents, 1)
}
