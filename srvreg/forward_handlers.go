package srvreg

import (
	"encoding/json"
	"net/http"
)

type createForwardRequest struct {
	ReceiverID uint    `json:"receiver_id"`
	Comment    *string `json:"comment"`
}

func (sr *ServiceRegistry) CreateForwardHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}
	var body createForwardRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.ReceiverID == 0 {
		return badRequest("receiver_id is required")
	}
	if body.ReceiverID == req.UserID {
		return badRequest("cannot forward a transaction to yourself")
	}

	forward, repoErr := sr.repository.CreateForward(id, req.UserID, body.ReceiverID, body.Comment)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusCreated, forward)
}

func (sr *ServiceRegistry) ListForwardsHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid transaction id")
	}
	if resp, err := sr.requireParticipant(req, id); resp != nil || err != nil {
		return resp, err
	}

	// Paginated when a page parameter is present, full chain otherwise
	if queryParam(req.Path, "page") != "" {
		page, perPage := pageParams(req.Path)
		forwards, meta, repoErr := sr.repository.ListForwardsPaginated(id, page, perPage)
		if repoErr != nil {
			return sr.errorResponse(req, repoErr)
		}
		return jsonResponse(http.StatusOK, map[string]any{"data": forwards, "meta": meta})
	}

	forwards, repoErr := sr.repository.ListForwards(id)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forwards)
}

// forwardIDs reads the transaction and forward path parameters
func (req *Request) forwardIDs() (uint, uint, bool) {
	transactionID, ok := req.uintParam("id")
	if !ok {
		return 0, 0, false
	}
	forwardID, ok := req.uintParam("forwardId")
	if !ok {
		return 0, 0, false
	}
	return transactionID, forwardID, true
}

func (sr *ServiceRegistry) GetForwardHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}
	if resp, err := sr.requireParticipant(req, transactionID); resp != nil || err != nil {
		return resp, err
	}

	// Retrieval flips the caller's seen flag when they are a party
	if repoErr := sr.repository.MarkForwardSeen(transactionID, forwardID, req.UserID); repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	forward, repoErr := sr.repository.GetForward(transactionID, forwardID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}

type commentRequest struct {
	Comment *string `json:"comment"`
}

func (sr *ServiceRegistry) UpdateSenderCommentHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}
	var body commentRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}

	forward, repoErr := sr.repository.UpdateSenderComment(transactionID, forwardID, req.UserID, body.Comment)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}

type respondRequest struct {
	Status  string  `json:"status"`
	Comment *string `json:"comment"`
}

func (sr *ServiceRegistry) RespondHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}
	var body respondRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}

	forward, repoErr := sr.repository.Respond(transactionID, forwardID, req.UserID, body.Status, body.Comment)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}

func (sr *ServiceRegistry) UpdateResponseHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}
	var body respondRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}

	forward, repoErr := sr.repository.UpdateResponse(transactionID, forwardID, req.UserID, body.Status, body.Comment)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}

func (sr *ServiceRegistry) EditSenderCommentHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}
	var body commentRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}

	forward, repoErr := sr.repository.EditSenderComment(transactionID, forwardID, req.UserID, body.Comment)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}

func (sr *ServiceRegistry) EditReceiverCommentHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}
	var body commentRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}

	forward, repoErr := sr.repository.EditReceiverComment(transactionID, forwardID, req.UserID, body.Comment)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}

func (sr *ServiceRegistry) DeleteForwardHandler(req *Request) (*Response, error) {
	transactionID, forwardID, ok := req.forwardIDs()
	if !ok {
		return badRequest("invalid transaction or forward id")
	}

	forward, repoErr := sr.repository.DeleteForward(transactionID, forwardID, req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, forward)
}
