package relay

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindbridge-dev/mindbridge/pkg/observability"
	"github.com/mindbridge-dev/mindbridge/pkg/session"
)

// Wire shapes for the chat route. History entries use the backend's nested
// "parts" wrapper, not the flat Turn shape used internally.
type chatRequest struct {
	Message string        `json:"message"`
	History []wireContent `json:"history,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text string `json:"text"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the chat relay route.
type Handler struct {
	svc     *Service
	limiter *RateLimiter
}

// NewHandler creates the relay HTTP handler. limiter may be nil to disable
// rate limiting.
func NewHandler(svc *Service, limiter *RateLimiter) *Handler {
	return &Handler{
		svc:     svc,
		limiter: limiter,
	}
}

// ServeHTTP handles POST /chat.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()

	setCORSHeaders(w)
	w.Header().Set("X-Request-Id", requestID)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		h.writeError(w, start, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientID(r)) {
		observability.RecordRateLimited()
		h.writeError(w, start, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, start, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.svc.Relay(r.Context(), req.Message, historyFromWire(req.History))
	if err != nil {
		status, msg := classifyError(err)
		log.Printf("[Relay] request %s failed: %v", requestID, err)
		h.writeError(w, start, status, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(chatResponse{Reply: reply})
	observability.RecordRelayRequest(strconv.Itoa(http.StatusOK), time.Since(start))
}

func (h *Handler) writeError(w http.ResponseWriter, start time.Time, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
	observability.RecordRelayRequest(strconv.Itoa(status), time.Since(start))
}

// classifyError maps relay failures onto the two HTTP status classes the
// route exposes. A missing credential stays a generic message so credential
// details never leak; upstream errors surface their message for diagnostics.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, "message must not be empty"
	case errors.Is(err, ErrNotConfigured):
		return http.StatusInternalServerError, "server misconfigured"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// historyFromWire flattens the nested parts wrapper into internal turns.
func historyFromWire(history []wireContent) []session.Turn {
	if len(history) == 0 {
		return nil
	}

	turns := make([]session.Turn, 0, len(history))
	for _, c := range history {
		var text strings.Builder
		for _, p := range c.Parts {
			text.WriteString(p.Text)
		}
		turns = append(turns, session.Turn{Role: c.Role, Content: text.String()})
	}
	return turns
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// clientID keys rate limiting by the caller's address.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
