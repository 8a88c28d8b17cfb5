// Package server hosts the HTTP surface over the chat service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/internal/profile"
	apiv1 "github.com/hrygo/loom/server/router/api/v1"
	"github.com/hrygo/loom/service/chat"
	"github.com/hrygo/loom/store"
)

// Server wires the echo instance with the API routes.
type Server struct {
	profile *profile.Profile
	echo    *echo.Echo
	store   *store.Store
}

// New builds the HTTP server around the chat service.
func New(p *profile.Profile, st *store.Store, svc *chat.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.HTTPErrorHandler = errorHandler

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": p.Version})
	})

	apiv1.NewAPIV1Service(svc).Register(e)

	return &Server{profile: p, echo: e, store: st}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server listening", "addr", addr, "mode", s.profile.Mode)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server gracefully", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}

// errorHandler maps coded errors onto HTTP statuses with a JSON body.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := lerrors.CodeOf(err, "")
	switch code {
	case lerrors.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case lerrors.ErrCodeNotFound, lerrors.ErrCodeNoDocument:
		status = http.StatusNotFound
	case lerrors.ErrCodeDocumentMissing:
		status = http.StatusGone
	case lerrors.ErrCodeIngestFailed:
		status = http.StatusUnprocessableEntity
	case lerrors.ErrCodePersistenceFailed:
		status = http.StatusServiceUnavailable
	case "":
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			_ = c.JSON(status, map[string]any{"message": fmt.Sprint(he.Message)})
			return
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method,
			"path", c.Request().URL.Path, "error", err)
	}
	body := map[string]any{"message": err.Error()}
	if code != "" {
		body["code"] = string(code)
	}
	_ = c.JSON(status, body)
}
