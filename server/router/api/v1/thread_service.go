package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/loom/store"
)

type threadResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedTs int64  `json:"created_ts"`
	UpdatedTs int64  `json:"updated_ts"`
}

func toThreadResponse(t *store.Thread) threadResponse {
	return threadResponse{ID: t.ID, Title: t.Title, CreatedTs: t.CreatedTs, UpdatedTs: t.UpdatedTs}
}

func (s *APIV1Service) createThread(c echo.Context) error {
	thread, err := s.ChatService.CreateThread(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toThreadResponse(thread))
}

func (s *APIV1Service) listThreads(c echo.Context) error {
	threads, err := s.ChatService.ListThreads(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, toThreadResponse(t))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *APIV1Service) getThread(c echo.Context) error {
	thread, err := s.ChatService.GetThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toThreadResponse(thread))
}

type renameThreadRequest struct {
	Title string `json:"title"`
}

func (s *APIV1Service) renameThread(c echo.Context) error {
	var req renameThreadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	threadID := c.Param("id")
	if err := s.ChatService.RenameThread(c.Request().Context(), threadID, req.Title); err != nil {
		return err
	}
	thread, err := s.ChatService.GetThread(c.Request().Context(), threadID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toThreadResponse(thread))
}

func (s *APIV1Service) deleteThread(c echo.Context) error {
	if err := s.ChatService.DeleteThread(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *APIV1Service) getHistory(c echo.Context) error {
	messages, err := s.ChatService.GetHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	out := make([]historyMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, historyMessage{Role: string(m.Role), Content: m.Content})
	}
	return c.JSON(http.StatusOK, out)
}
