package srvreg

import (
	"encoding/json"
	"net/http"
)

func (sr *ServiceRegistry) CreateTransactionTypeHandler(req *Request) (*Response, error) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.Name == "" {
		return badRequest("name is required")
	}

	txType, repoErr := sr.repository.CreateTransactionType(body.Name, req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusCreated, txType)
}

func (sr *ServiceRegistry) ListTransactionTypesHandler(req *Request) (*Response, error) {
	types, repoErr := sr.repository.ListTransactionTypes()
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, types)
}

func (sr *ServiceRegistry) DeleteTransactionTypeHandler(req *Request) (*Response, error) {
	isAdmin := sr.repository.IsAdmin(req.UserID)
	if repoErr := sr.repository.DeleteTransactionType(req.params()["name"], req.UserID, isAdmin); repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]string{"status": "deleted"})
}
