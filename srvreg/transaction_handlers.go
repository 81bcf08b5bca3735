package srvreg

import (
	"encoding/json"
	"net/http"

	"github.com/finsys-id/finance-api/repository"
	"github.com/finsys-id/finance-api/repository/models"
)

func validPriority(p string) bool {
	switch p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return true
	}
	return false
}

// requireParticipant rejects the request unless the acting user is a
// participant of the transaction or an administrator.
func (sr *ServiceRegistry) requireParticipant(req *Request, transactionID uint) (*Response, error) {
	if sr.repository.IsAdmin(req.UserID) {
		return nil, nil
	}
	ok, repoErr := sr.repository.IsParticipant(transactionID, req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	if ok {
		return nil, nil
	}
	return jsonResponse(http.StatusForbidden, errorBody{
		Error:   repository.ErrNotTransactionParticipant,
		Message: "not a participant of this transaction",
	})
}

type createTransactionRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TypeName    *string  `json:"type_name"`
	Priority    string   `json:"priority"`
	DocumentIDs []string `json:"document_ids"`
}

func (sr *ServiceRegistry) CreateTransactionHandler(req *Request) (*Response, error) {
	var body createTransactionRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Title == "" {
		return badRequest("title is required")
	}
	if body.Priority == "" {
		body.Priority = models.PriorityMedium
	}
	if !validPriority(body.Priority) {
		return badRequest("priority must be LOW, MEDIUM or HIGH")
	}

	transaction, repoErr := sr.repository.CreateTransaction(
		body.Title, body.Description, body.TypeName, body.Priority, req.UserID, body.DocumentIDs)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusCreated, transaction)
}

func (sr *ServiceRegistry) ListTransactionsHandler(req *Request) (*Response, error) {
	query := queryParam(req.Path, "query")
	if query == "" {
		query = repository.QueryInbox
	}
	switch query {
	case repository.QueryAll, repository.QueryInbox, repository.QueryOutgoing, repository.QueryArchive:
	default:
		return badRequest("query must be one of all, inbox, outgoing, archive")
	}

	page, perPage := pageParams(req.Path)
	isAdmin := sr.repository.IsAdmin(req.UserID)
	transactions, meta, summary, repoErr := sr.repository.FindTransactions(query, req.UserID, isAdmin, page, perPage)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"data":    transactions,
		"meta":    meta,
		"summary": summary,
	})
}

func (sr *ServiceRegistry) GetTransactionHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}
	if resp, err := sr.requireParticipant(req, id); resp != nil || err != nil {
		return resp, err
	}

	// Retrieval counts as reading the latest forward
	if repoErr := sr.repository.MarkTransactionSeen(id, req.UserID); repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	transaction, repoErr := sr.repository.GetTransaction(id)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, transaction)
}

type updateTransactionRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	TypeName    *string   `json:"type_name"`
	Priority    *string   `json:"priority"`
	Fulfilled   *bool     `json:"fulfilled"`
	DocumentIDs *[]string `json:"document_ids"`
}

func (sr *ServiceRegistry) UpdateTransactionHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}
	var body updateTransactionRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Priority != nil && !validPriority(*body.Priority) {
		return badRequest("priority must be LOW, MEDIUM or HIGH")
	}

	current, repoErr := sr.repository.GetTransaction(id)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	if current.CreatorID != req.UserID && !sr.repository.IsAdmin(req.UserID) {
		return jsonResponse(http.StatusForbidden, errorBody{
			Error:   repository.ErrNotTransactionCreator,
			Message: "only the creator can update a transaction",
		})
	}
	update := repository.TransactionUpdate{
		Title:       body.Title,
		Description: body.Description,
		TypeName:    body.TypeName,
		Priority:    current.Priority,
		Fulfilled:   current.Fulfilled,
		DocumentIDs: body.DocumentIDs,
	}
	if body.Priority != nil {
		update.Priority = *body.Priority
	}
	if body.Fulfilled != nil {
		update.Fulfilled = *body.Fulfilled
	}

	transaction, repoErr := sr.repository.UpdateTransaction(id, update, req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, transaction)
}

func (sr *ServiceRegistry) DeleteTransactionHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}

	current, repoErr := sr.repository.GetTransaction(id)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	if current.CreatorID != req.UserID && !sr.repository.IsAdmin(req.UserID) {
		return jsonResponse(http.StatusForbidden, errorBody{
			Error:   repository.ErrNotTransactionCreator,
			Message: "only the creator can delete a transaction",
		})
	}

	transaction, repoErr := sr.repository.DeleteTransaction(id)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, transaction)
}

func (sr *ServiceRegistry) AttachDocumentHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}
	if resp, err := sr.requireParticipant(req, id); resp != nil || err != nil {
		return resp, err
	}

	transaction, repoErr := sr.repository.AttachDocument(id, req.params()["documentId"], req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, transaction)
}

func (sr *ServiceRegistry) DetachDocumentHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}

	transaction, repoErr := sr.repository.DetachDocument(id, req.params()["documentId"], req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, transaction)
}
