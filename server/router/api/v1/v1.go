// Package v1 exposes the REST API over the chat service.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/loom/service/chat"
)

// APIV1Service registers the /api/v1 route group.
type APIV1Service struct {
	ChatService *chat.Service
}

// NewAPIV1Service creates the API surface.
func NewAPIV1Service(svc *chat.Service) *APIV1Service {
	return &APIV1Service{ChatService: svc}
}

// Register mounts all v1 routes on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/threads", s.createThread)
	g.GET("/threads", s.listThreads)
	g.GET("/threads/:id", s.getThread)
	g.PATCH("/threads/:id", s.renameThread)
	g.DELETE("/threads/:id", s.deleteThread)
	g.GET("/threads/:id/history", s.getHistory)

	g.POST("/threads/:id/messages", s.sendMessage)
	g.POST("/threads/:id/messages/stream", s.streamMessage)

	g.POST("/threads/:id/document", s.uploadDocument)
	g.GET("/threads/:id/document", s.getDocument)
	g.POST("/threads/:id/document/query", s.queryDocument)
}
