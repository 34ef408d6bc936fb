// Package server wires the echo application together and manages its
// lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/pcplabs/pcpchat/plugin/imagegen"
	"github.com/pcplabs/pcpchat/plugin/llm"
	"github.com/pcplabs/pcpchat/server/auth"
	"github.com/pcplabs/pcpchat/server/profile"
	"github.com/pcplabs/pcpchat/server/router/api"
	"github.com/pcplabs/pcpchat/server/router/frontend"
	"github.com/pcplabs/pcpchat/store"
)

const shutdownTimeout = 10 * time.Second

// Server is the assembled HTTP application.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

// NewServer assembles handlers, gateways, and middleware.
func NewServer(p *profile.Profile, st *store.Store) *Server {
	e := echo.New()
	e.Use(requestLogger)

	authenticator := auth.NewAuthenticator(st, p.SessionSecret)
	completions := llm.NewClient(p.OpenRouterAPIKey, llm.WithModel(p.Model))
	images := imagegen.NewClient(p.HuggingFaceToken)

	apiService := api.NewAPIService(st, authenticator, completions, images)
	apiService.RegisterRoutes(e)
	frontend.RegisterRoutes(e)

	return &Server{Profile: p, Store: st, echoServer: e}
}

// Start serves until ctx is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port),
		Handler: s.echoServer,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", httpServer.Addr, "mode", s.Profile.Mode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return s.Store.Close()
	}
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		slog.Info("request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"duration", time.Since(start),
			"err", err,
		)
		return err
	}
}
