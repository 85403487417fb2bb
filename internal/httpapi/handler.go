// Package httpapi exposes the relay's REST surface. Handlers are thin
// adapters: they validate input, call the registry synchronously and
// serialize results.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/relayhub/relay/internal/bus"
	"github.com/relayhub/relay/internal/delivery"
	"github.com/relayhub/relay/internal/presence"
	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/zap"
)

// Handler bundles the REST handlers and their collaborators.
type Handler struct {
	reg      *registry.Registry
	delivery *delivery.Client
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates the REST handler set.
func New(reg *registry.Registry, d *delivery.Client, b *bus.Bus, logger *zap.Logger) *Handler {
	return &Handler{reg: reg, delivery: d, bus: b, logger: logger}
}

// Routes returns the full REST router wrapped in the request logging
// middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/users", h.handleRegister)
	mux.HandleFunc("GET /api/v1/users", h.handleListUsers)
	mux.HandleFunc("GET /api/v1/messages", h.handleListMessages)
	mux.HandleFunc("POST /api/v1/messages/user/{id}", h.handleSendMessage)
	mux.HandleFunc("GET /api/v1/status", h.handleStatus)
	mux.HandleFunc("GET /api/v1/events", h.handleEvents)
	return h.withLogging(mux)
}

// currentUser resolves the pin query parameter to a user. Handlers requiring
// authentication must bail out before touching any state when this fails.
func (h *Handler) currentUser(r *http.Request) (registry.User, bool) {
	return h.reg.GetUserByPin(r.URL.Query().Get("pin"))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Endpoint *string `json:"endpoint"`
		Name     *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Endpoint == nil || body.Name == nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p, err := h.reg.AddUser(*body.Endpoint, *body.Name)
	if err != nil {
		h.logger.Error("failed to add user", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.bus.Publish(bus.Event{
		Kind:      bus.KindUserRegistered,
		Timestamp: time.Now(),
		Payload:   map[string]string{"name": *body.Name, "endpoint": *body.Endpoint},
	})

	writeJSON(w, http.StatusCreated, map[string]string{"pin": p})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	// Tri-state filter: unset / true / false; anything else means unset.
	var online *bool
	switch r.URL.Query().Get("online") {
	case "true":
		v := true
		online = &v
	case "false":
		v := false
		online = &v
	}

	users := h.reg.GetUsers(online)
	items := make([]userSummary, 0, len(users))
	for _, u := range users {
		items = append(items, userSummary{ID: u.ID, Online: u.Online, Name: u.Name})
	}
	writeJSON(w, http.StatusOK, userList{Count: len(items), Items: items})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	msgs := h.reg.GetMessages(user)
	writeJSON(w, http.StatusOK, messageList{Count: len(msgs), Items: msgs})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	from, ok := h.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	to, ok := h.reg.GetUserByID(id)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var body struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	msg, err := h.reg.AddMessage(from, to, *body.Text)
	if err != nil {
		h.logger.Error("failed to add message", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.bus.Publish(bus.Event{Kind: bus.KindMessageCreated, Timestamp: time.Now(), Payload: msg})

	// Single synchronous best-effort attempt; the outcome is recorded either
	// way and a failed delivery is a negative result, not an error.
	delivered := h.delivery.Send(r.Context(), msg, to.Endpoint)
	h.reg.SetMessageDelivered(msg.ID, delivered)
	if err := h.reg.Dump(); err != nil {
		h.logger.Error("failed to persist delivery result", zap.Error(err), zap.Int("message_id", msg.ID))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.bus.Publish(bus.Event{
		Kind:      bus.KindMessageDelivered,
		Timestamp: time.Now(),
		Payload:   map[string]any{"message_id": msg.ID, "delivered": delivered},
	})

	writeJSON(w, http.StatusCreated, map[string]bool{"delivered": delivered})
}

// handleStatus serves the same well-known health payload the poller expects
// from peers, so one hub can be registered as a peer of another.
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": presence.StatusOnline})
}

type userSummary struct {
	ID     int    `json:"id"`
	Online bool   `json:"online"`
	Name   string `json:"name"`
}

type userList struct {
	Count int           `json:"count"`
	Items []userSummary `json:"items"`
}

type messageList struct {
	Count int                `json:"count"`
	Items []registry.Message `json:"items"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
