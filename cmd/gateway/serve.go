package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/zap-gateway/internal/handler"
	"github.com/zhouzirui/zap-gateway/internal/handler/status"
	"github.com/zhouzirui/zap-gateway/internal/service/access"
	"github.com/zhouzirui/zap-gateway/internal/service/ai"
	chatsvc "github.com/zhouzirui/zap-gateway/internal/service/chat"
	"github.com/zhouzirui/zap-gateway/internal/service/command"
	"github.com/zhouzirui/zap-gateway/internal/service/gateway"
	"github.com/zhouzirui/zap-gateway/internal/service/knowledge"
	"github.com/zhouzirui/zap-gateway/internal/service/session"
	"github.com/zhouzirui/zap-gateway/internal/transport/bridge"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect the messaging session and answer messages (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runGateway(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	kb, err := knowledge.Load(cfg.Knowledge.Dir, cfg.Knowledge.Patterns, logger)
	if err != nil {
		return fmt.Errorf("loading knowledge: %w", err)
	}
	logger.Info("knowledge base loaded", "dir", cfg.Knowledge.Dir, "bytes", len(kb))

	backend, err := ai.NewService(ctx, cfg.Backend, kb, logger.With("component", "backend"))
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	store := chatsvc.NewService(
		chatsvc.WithHistoryLimit(cfg.Conversation.HistoryLimit),
		chatsvc.WithDefaultLanguage(cfg.Conversation.DefaultLanguage),
	)
	allow := access.NewAllowList(cfg.Access.AllowedSenders)
	if allow.Len() == 0 {
		logger.Warn("allow list is empty, every message will be dropped")
	}

	var manager *session.Manager
	gw := gateway.New(gateway.Deps{
		Auth:     allow,
		Commands: command.NewRouter(store),
		Store:    store,
		Backend:  backend,
		Sender: gateway.SenderFunc(func(ctx context.Context, to, text, quotedID string) error {
			return manager.Send(ctx, to, text, quotedID)
		}),
	},
		gateway.WithTemperature(cfg.Backend.Temperature),
		gateway.WithLogger(logger.With("component", "gateway")),
	)

	dialer := bridge.NewDialer(bridge.Options{
		URL:              cfg.Transport.BridgeURL,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		WriteTimeout:     cfg.Transport.WriteTimeout,
	}, logger.With("component", "bridge"))

	out := cmd.OutOrStdout()
	manager = session.NewManager(dialer, gw,
		session.WithLogger(logger.With("component", "session")),
		session.WithBackoff(cfg.Session.ReconnectBaseDelay, cfg.Session.ReconnectMaxDelay),
		session.WithPairingHandler(func(code string) {
			logger.Info("pairing required, link the device with the code below")
			fmt.Fprintln(out, code)
		}),
		session.WithOpenHook(func(ctx context.Context) {
			go checkBackend(ctx, backend, cfg.Backend.BaseURL, logger)
		}),
	)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handler.NewRouter(status.New(manager, backend, store, status.Info{
			AllowedSenders: allow.Len(),
			KnowledgeBytes: len(kb),
			Version:        Version,
		}), logger.With("component", "http")),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		err := manager.Run(ctx)
		stop()
		errCh <- err
	}()
	go func() {
		logger.Info("status server listening", "addr", srv.Addr)
		err := runServer(ctx, srv)
		stop()
		errCh <- err
	}()

	var errs []error
	for i := 0; i < cap(errCh); i++ {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Wait(waitCtx); err != nil {
		logger.Warn("in-flight messages abandoned", "error", err)
	}

	if errors.Is(errors.Join(errs...), session.ErrLoggedOut) {
		logger.Error("session logged out, pair the device again before restarting")
	}
	logger.Info("gateway stopped")
	return errors.Join(errs...)
}

// checkBackend logs whether the backend answers once the session opens.
func checkBackend(ctx context.Context, backend *ai.Service, baseURL string, logger *slog.Logger) {
	if backend.Probe(ctx) {
		logger.Info("backend reachable", "base_url", baseURL)
		return
	}
	logger.Warn("backend not reachable, replies will report it until it recovers", "base_url", baseURL)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	}
}
