package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/c360studio/tutorgate/scope"
)

// HTTPHandler exposes the service over HTTP.
type HTTPHandler struct {
	service    *Service
	adminToken string
	version    string
}

// NewHTTPHandler creates the HTTP boundary. adminToken guards the admin
// endpoints; an empty token disables them.
func NewHTTPHandler(service *Service, adminToken, version string) *HTTPHandler {
	return &HTTPHandler{
		service:    service,
		adminToken: adminToken,
		version:    version,
	}
}

// RegisterHTTPHandlers registers all routes on mux.
func (h *HTTPHandler) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", h.handleChat)
	mux.HandleFunc("/api/admin/reset-class", h.handleResetClass)
	mux.HandleFunc("/healthz", h.handleHealthz)
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// handleChat handles POST /api/chat.
func (h *HTTPHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use POST")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(CodeBadRequestBody), "Request body is not valid JSON")
		return
	}

	req.ActorID = r.Header.Get("X-Actor-ID")
	req.ActorType = actorTypeFromHeader(r.Header.Get("X-Actor-Type"))

	resp, err := h.service.Chat(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleResetClass handles POST /api/admin/reset-class.
func (h *HTTPHandler) handleResetClass(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use POST")
		return
	}
	if !h.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, string(CodeUnauthorized), "Admin credential required")
		return
	}

	var req ResetClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(CodeBadRequestBody), "Request body is not valid JSON")
		return
	}

	resp, err := h.service.ResetClass(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealthz handles GET /healthz with a backend registry summary.
func (h *HTTPHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status   string   `json:"status"`
		Version  string   `json:"version"`
		Backends []string `json:"backends"`
	}

	writeJSON(w, http.StatusOK, health{
		Status:   "ok",
		Version:  h.version,
		Backends: h.service.registry.Names(),
	})
}

// authorized checks the admin bearer token in constant time.
func (h *HTTPHandler) authorized(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func actorTypeFromHeader(v string) scope.ActorType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "staff":
		return scope.ActorStaff
	case "service":
		return scope.ActorService
	default:
		return scope.ActorStudent
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var gerr *Error
	if !errors.As(err, &gerr) {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Unexpected failure")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gerr.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     string(gerr.Code),
		Message:   gerr.Message,
		RequestID: gerr.RequestID,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
