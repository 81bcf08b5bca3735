package srvreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/finsys-id/finance-api/repository"
)

// jsonResponse marshals payload into a Response body
func jsonResponse(statusCode int, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %v", err)
	}
	return &Response{
		StatusCode: statusCode,
		Headers:    defaultHeaders,
		Body:       string(body),
	}, nil
}

// errorBody is the uniform error payload
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// badRequest builds a 400 response for malformed input
func badRequest(message string) (*Response, error) {
	return jsonResponse(http.StatusBadRequest, errorBody{
		Error:   "BAD_REQUEST",
		Message: message,
	})
}

// statusForCode maps repository error codes onto HTTP status codes
func statusForCode(code string) int {
	switch code {
	case repository.ErrTransactionNotFound,
		repository.ErrForwardNotFound,
		repository.ErrEntityNotFound:
		return http.StatusNotFound
	case repository.ErrNotTransactionCreator,
		repository.ErrNotLatestReceiver,
		repository.ErrNotForwardSender,
		repository.ErrNotForwardReceiver,
		repository.ErrNotTransactionParticipant,
		repository.ErrNotDocumentAttacher,
		repository.ErrMissingRole:
		return http.StatusForbidden
	case repository.ErrForwardNotResponded,
		repository.ErrForwardAlreadyResponded,
		repository.ErrForwardAlreadySeen:
		return http.StatusConflict
	case repository.ErrInvalidStatus:
		return http.StatusBadRequest
	case repository.PgErrUniqueViolation:
		return http.StatusConflict
	case repository.PgErrForeignKeyViolation,
		repository.PgErrCheckViolation,
		repository.PgErrNotNullViolation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse converts a repository error into an HTTP response
func (sr *ServiceRegistry) errorResponse(req *Request, err error) (*Response, error) {
	var repoErr *repository.RepositoryError
	if errors.As(err, &repoErr) {
		status := statusForCode(repoErr.Code)
		if status == http.StatusInternalServerError {
			sr.logger.Errorw("request failed",
				"request_id", req.RequestID,
				"path", req.Path,
				"code", repoErr.Code,
				"detail", repoErr.Detail,
			)
		}
		return jsonResponse(status, errorBody{
			Error:   repoErr.Code,
			Message: repoErr.Message,
			Detail:  repoErr.Detail,
		})
	}

	sr.logger.Errorw("request failed",
		"request_id", req.RequestID,
		"path", req.Path,
		"error", err,
	)
	return jsonResponse(http.StatusInternalServerError, errorBody{
		Error:   "INTERNAL_ERROR",
		Message: "internal server error",
	})
}
