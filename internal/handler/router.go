package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/zap-gateway/internal/handler/status"
	"github.com/zhouzirui/zap-gateway/pkg/utils"
)

// NewRouter wires the operational HTTP routes. Request logs go to logger.
func NewRouter(statusHandler *status.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(slogFormatter{logger: logger}))
	r.Use(middleware.Recoverer)

	statusHandler.RegisterRoutes(r)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "not found")
	})

	return r
}
