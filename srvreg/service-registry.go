package srvreg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/finsys-id/finance-api/repository"
	"github.com/finsys-id/finance-api/token"
	"go.uber.org/zap"
)

// Request represents the client's HTTP request after authentication
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	UserID     uint              `json:"user_id"` // acting user, resolved by the auth middleware
	Timestamp  time.Time         `json:"timestamp"`
}

// Response is the computed response for a request
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool // whether a route is exact or pattern-based
	mu          sync.RWMutex
	repository  *repository.Repository
	tokens      *token.Manager
	logger      *zap.SugaredLogger
}

// ConvertHTTPRequest converts an http.Request to a Request
func ConvertHTTPRequest(r *http.Request, requestID string, userID uint) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = compactJSON(strings.TrimSpace(string(bodyBytes)))
	}

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path = path + "?" + r.URL.RawQuery
	}

	return &Request{
		Method:     r.Method,
		Path:       path,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		UserID:     userID,
		Timestamp:  time.Now(),
	}, nil
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(repository *repository.Repository, tokens *token.Manager, logger *zap.SugaredLogger) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		repository:  repository,
		tokens:      tokens,
		logger:      logger,
	}
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the appropriate handler for a given path along with
// the matched route pattern.
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	// Try exact match first, ignoring any query string
	key := RouteKey{Method: strings.ToUpper(method), Path: strings.SplitN(path, "?", 2)[0]}
	if handler, ok := sr.handlers[key]; ok {
		if sr.exactRoutes[key] {
			return handler, key.Path, true
		}
	}

	// Try pattern matching
	for routeKey, handler := range sr.handlers {
		if routeKey.Method != strings.ToUpper(method) {
			continue
		}
		if sr.exactRoutes[routeKey] {
			continue
		}
		if matchPath(routeKey.Path, path) {
			return handler, routeKey.Path, true
		}
	}

	return nil, "", false
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/user/:id" matching "/user/123".
func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(strings.SplitN(path, "?", 2)[0], "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i := 0; i < len(patternParts); i++ {
		if strings.HasPrefix(patternParts[i], ":") {
			// This is a parameter part, it matches anything
			continue
		}
		if patternParts[i] != pathParts[i] {
			return false
		}
	}

	return true
}

// pathParams extracts the :name segments of pattern from path
func pathParams(pattern, path string) map[string]string {
	params := make(map[string]string)
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(strings.SplitN(path, "?", 2)[0], "/")
	if len(patternParts) != len(pathParts) {
		return params
	}
	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") {
			params[part[1:]] = pathParts[i]
		}
	}
	return params
}

// queryParam returns one query string value from the request path
func queryParam(path, name string) string {
	parts := strings.SplitN(path, "?", 2)
	if len(parts) != 2 {
		return ""
	}
	for _, pair := range strings.Split(parts[1], "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] == name {
			return kv[1]
		}
	}
	return ""
}

// pageParams reads page/per_page from the query string with sane defaults
func pageParams(path string) (int, int) {
	page, perPage := 1, 20
	if v, err := strconv.Atoi(queryParam(path, "page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(queryParam(path, "per_page")); err == nil && v > 0 && v <= 100 {
		perPage = v
	}
	return page, perPage
}

// RegisterDefaultServices sets up every route of the finance API
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Auth
	sr.RegisterHandler("POST", "/auth/login", true, sr.LoginHandler)
	sr.RegisterHandler("POST", "/auth/refresh", true, sr.RefreshHandler)

	// Users
	sr.RegisterHandler("POST", "/user", true, sr.CreateUserHandler)
	sr.RegisterHandler("GET", "/user", true, sr.ListUsersHandler)
	sr.RegisterHandler("GET", "/user/:id", false, sr.GetUserHandler)
	sr.RegisterHandler("PATCH", "/user/:id", false, sr.UpdateUserHandler)
	sr.RegisterHandler("DELETE", "/user/:id", false, sr.DeleteUserHandler)

	// Departments
	sr.RegisterHandler("POST", "/department", true, sr.CreateDepartmentHandler)
	sr.RegisterHandler("GET", "/department", true, sr.ListDepartmentsHandler)
	sr.RegisterHandler("GET", "/department/:name", false, sr.GetDepartmentHandler)
	sr.RegisterHandler("PATCH", "/department/:name", false, sr.SetDepartmentManagerHandler)
	sr.RegisterHandler("DELETE", "/department/:name", false, sr.DeleteDepartmentHandler)

	// Transaction types
	sr.RegisterHandler("POST", "/transaction-type", true, sr.CreateTransactionTypeHandler)
	sr.RegisterHandler("GET", "/transaction-type", true, sr.ListTransactionTypesHandler)
	sr.RegisterHandler("DELETE", "/transaction-type/:name", false, sr.DeleteTransactionTypeHandler)

	// Documents
	sr.RegisterHandler("POST", "/document", true, sr.UploadDocumentHandler)
	sr.RegisterHandler("GET", "/document", true, sr.ListDocumentsHandler)
	sr.RegisterHandler("GET", "/document/:id/download", false, sr.DownloadDocumentHandler)
	sr.RegisterHandler("DELETE", "/document/:id", false, sr.DeleteDocumentHandler)

	// Transactions
	sr.RegisterHandler("POST", "/transaction", true, sr.CreateTransactionHandler)
	sr.RegisterHandler("GET", "/transaction", true, sr.ListTransactionsHandler)
	sr.RegisterHandler("GET", "/transaction/:id", false, sr.GetTransactionHandler)
	sr.RegisterHandler("PATCH", "/transaction/:id", false, sr.UpdateTransactionHandler)
	sr.RegisterHandler("DELETE", "/transaction/:id", false, sr.DeleteTransactionHandler)
	sr.RegisterHandler("POST", "/transaction/:id/document/:documentId", false, sr.AttachDocumentHandler)
	sr.RegisterHandler("DELETE", "/transaction/:id/document/:documentId", false, sr.DetachDocumentHandler)

	// Forwards
	sr.RegisterHandler("POST", "/transaction/:id/forward", false, sr.CreateForwardHandler)
	sr.RegisterHandler("GET", "/transaction/:id/forward", false, sr.ListForwardsHandler)
	sr.RegisterHandler("GET", "/transaction/:id/forward/:forwardId", false, sr.GetForwardHandler)
	sr.RegisterHandler("PATCH", "/transaction/:id/forward/:forwardId", false, sr.UpdateSenderCommentHandler)
	sr.RegisterHandler("POST", "/transaction/:id/forward/:forwardId/response", false, sr.RespondHandler)
	sr.RegisterHandler("PATCH", "/transaction/:id/forward/:forwardId/response", false, sr.UpdateResponseHandler)
	sr.RegisterHandler("PATCH", "/transaction/:id/forward/:forwardId/sender-comment", false, sr.EditSenderCommentHandler)
	sr.RegisterHandler("PATCH", "/transaction/:id/forward/:forwardId/receiver-comment", false, sr.EditReceiverCommentHandler)
	sr.RegisterHandler("DELETE", "/transaction/:id/forward/:forwardId", false, sr.DeleteForwardHandler)
}

// GenerateResponse executes the request against the registry
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	handler, pattern, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       fmt.Sprintf("Service not found for %s %s", req.Method, req.Path),
		}, nil
	}

	// Stash the matched pattern so handlers can pull path params
	req.Headers["X-Route-Pattern"] = pattern
	return handler(req)
}

// params returns the request's path parameters using the matched pattern
func (req *Request) params() map[string]string {
	return pathParams(req.Headers["X-Route-Pattern"], req.Path)
}

// uintParam parses one numeric path parameter
func (req *Request) uintParam(name string) (uint, bool) {
	v, err := strconv.ParseUint(req.params()[name], 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		// Not JSON, return trimmed original
		return strings.TrimSpace(body)
	}
	return buf.String()
}
