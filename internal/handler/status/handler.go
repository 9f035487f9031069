package status

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/zap-gateway/internal/service/session"
	"github.com/zhouzirui/zap-gateway/pkg/utils"
)

// SessionReporter exposes the transport session state.
type SessionReporter interface {
	Status() session.Status
	IsOpen() bool
}

// Prober checks the generation backend.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Counter reports the number of known conversations.
type Counter interface {
	Count() int
}

// Info is the static part of the status report.
type Info struct {
	AllowedSenders int
	KnowledgeBytes int
	Version        string
}

// Response is the body of GET /api/status.
type Response struct {
	Version        string    `json:"version,omitempty"`
	State          string    `json:"state"`
	CloseReason    string    `json:"closeReason,omitempty"`
	Attempts       int       `json:"attempts"`
	Since          time.Time `json:"since"`
	Conversations  int       `json:"conversations"`
	AllowedSenders int       `json:"allowedSenders"`
	KnowledgeBytes int       `json:"knowledgeBytes"`
}

// Handler serves liveness, readiness and status.
type Handler struct {
	session       SessionReporter
	backend       Prober
	conversations Counter
	info          Info
}

// New creates the status handler.
func New(sess SessionReporter, backend Prober, conversations Counter, info Info) *Handler {
	return &Handler{
		session:       sess,
		backend:       backend,
		conversations: conversations,
		info:          info,
	}
}

// RegisterRoutes mounts /healthz, /readyz and /api/status.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Get("/api/status", h.handleStatus)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 200 only when replies can be delivered and generated.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if !h.session.IsOpen() {
		utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "session " + h.session.Status().State.String(),
		})
		return
	}
	if !h.backend.Probe(r.Context()) {
		utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "backend unreachable",
		})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.session.Status()
	resp := Response{
		Version:        h.info.Version,
		State:          st.State.String(),
		Attempts:       st.Attempts,
		Since:          st.Since,
		Conversations:  h.conversations.Count(),
		AllowedSenders: h.info.AllowedSenders,
		KnowledgeBytes: h.info.KnowledgeBytes,
	}
	if st.State == session.StateClosed {
		resp.CloseReason = st.CloseReason.String()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}
