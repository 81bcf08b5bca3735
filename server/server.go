package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/finsys-id/finance-api/repository"
	service_registry "github.com/finsys-id/finance-api/srvreg"
	"github.com/finsys-id/finance-api/token"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	logger          *zap.SugaredLogger
	startTime       time.Time
	serviceRegistry *service_registry.ServiceRegistry
	repository      *repository.Repository
	tokens          *token.Manager
	limiter         *RateLimiter
}

// NewWebServer creates a new web server
func NewWebServer(
	httpPort string,
	logger *zap.SugaredLogger,
	serviceRegistry *service_registry.ServiceRegistry,
	repository *repository.Repository,
	tokens *token.Manager,
	limiter *RateLimiter,
) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		httpAddr:        ":" + httpPort,
		logger:          logger,
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		repository:      repository,
		tokens:          tokens,
		limiter:         limiter,
	}

	// Register routes
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/auth/", ws.withRateLimit(ws.handlePublicAPI))
	mux.HandleFunc("/", ws.withRateLimit(ws.withAuth(ws.handleAPI)))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	ws.server = &http.Server{
		Addr:    ":" + httpPort,
		Handler: corsHandler.Handler(mux),
	}
	return ws
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Infow("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Errorw("web server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleHealth reports liveness and uptime
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]any{
		"status": "ok",
		"uptime": time.Since(ws.startTime).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		ws.logger.Errorw("Failed to encode health response", "err", err)
	}
}

// withRateLimit rejects clients that exceed the per-address request budget
func (ws *WebServer) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ws.limiter.Allow(clientAddr(r)) {
			JSONError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// withAuth resolves the bearer token into a user ID before the request is
// handed to the registry. The resolved ID travels in the request context.
func (ws *WebServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			JSONError(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}

		userID, err := ws.tokens.VerifyAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			JSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		user, repoErr := ws.repository.GetUser(userID)
		if repoErr != nil || !user.Active {
			JSONError(w, "Account is no longer active", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(withUserID(r.Context(), userID)))
	}
}

// handlePublicAPI serves the unauthenticated auth endpoints
func (ws *WebServer) handlePublicAPI(w http.ResponseWriter, r *http.Request) {
	ws.serveRegistry(w, r, 0)
}

// handleAPI serves every authenticated endpoint through the service registry
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ws.serveRegistry(w, r, userID)
}

func (ws *WebServer) serveRegistry(w http.ResponseWriter, r *http.Request, userID uint) {
	requestID, err := generateRequestID()
	if err != nil {
		JSONError(w, "Internal Server Error", http.StatusInternalServerError)
		ws.logger.Errorw("Failed to generate request ID", "err", err)
		return
	}

	request, err := service_registry.ConvertHTTPRequest(r, requestID, userID)
	if err != nil {
		JSONError(w, "Failed to convert request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Errorw("Failed to convert HTTP request", "err", err)
		return
	}

	response, err := request.GenerateResponse(ws.serviceRegistry)
	if err != nil {
		JSONError(w, "Failed to generate response: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Errorw("Failed to generate response", "err", err, "request_id", requestID)
		return
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(response.StatusCode)
	if _, err := w.Write([]byte(response.Body)); err != nil {
		ws.logger.Errorw("Failed to write response", "err", err, "request_id", requestID)
	}

	ws.logger.Infow("request served",
		"request_id", requestID,
		"method", request.Method,
		"path", request.Path,
		"status", response.StatusCode,
		"user_id", userID,
		"duration", time.Since(request.Timestamp).String(),
	)
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// clientAddr strips the port so one client maps to one limiter
func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
