package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/zap-gateway/internal/model/transport"
	"github.com/zhouzirui/zap-gateway/internal/service/session"
)

type stubSession struct{ status session.Status }

func (s stubSession) Status() session.Status { return s.status }

func (s stubSession) IsOpen() bool { return s.status.State == session.StateOpen }

type stubProber struct {
	up     bool
	probes int
}

func (p *stubProber) Probe(context.Context) bool {
	p.probes++
	return p.up
}

type stubCounter int

func (c stubCounter) Count() int { return int(c) }

func setupRouter(st session.Status, prober *stubProber) *chi.Mux {
	h := New(stubSession{status: st}, prober, stubCounter(3), Info{AllowedSenders: 2, KnowledgeBytes: 128, Version: "test"})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func serve(r http.Handler, path string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func TestHealthz(t *testing.T) {
	r := setupRouter(session.Status{State: session.StateClosed}, &stubProber{})
	assert.Equal(t, http.StatusOK, serve(r, "/healthz").Code)
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		state      session.State
		up         bool
		wantCode   int
		wantProbes int
	}{
		{name: "open and reachable", state: session.StateOpen, up: true, wantCode: http.StatusOK, wantProbes: 1},
		{name: "backend down", state: session.StateOpen, up: false, wantCode: http.StatusServiceUnavailable, wantProbes: 1},
		{name: "awaiting pairing", state: session.StateAwaitingPairing, up: true, wantCode: http.StatusServiceUnavailable},
		{name: "closed", state: session.StateClosed, up: true, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &stubProber{up: tt.up}
			r := setupRouter(session.Status{State: tt.state}, prober)

			assert.Equal(t, tt.wantCode, serve(r, "/readyz").Code)
			assert.Equal(t, tt.wantProbes, prober.probes)
		})
	}
}

func TestStatus(t *testing.T) {
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := setupRouter(session.Status{
		State:       session.StateClosed,
		CloseReason: transport.ReasonConnectionLost,
		Attempts:    4,
		Since:       since,
	}, &stubProber{})

	resp := serve(r, "/api/status")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, Response{
		Version:        "test",
		State:          "closed",
		CloseReason:    transport.ReasonConnectionLost.String(),
		Attempts:       4,
		Since:          since,
		Conversations:  3,
		AllowedSenders: 2,
		KnowledgeBytes: 128,
	}, body)
}
