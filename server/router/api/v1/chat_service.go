package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/loom/plugin/ai/agent"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (s *APIV1Service) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	reply, err := s.ChatService.SendTurn(c.Request().Context(), c.Param("id"), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reply)
}

// streamMessage runs a turn and pushes server-sent events: token, tool_use,
// tool_result, answer, and error. The terminal event is always answer or
// error, after which the stream closes.
func (s *APIV1Service) streamMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	writeEvent := func(event agent.StreamEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event.Kind, data)
		resp.Flush()
	}

	_, err := s.ChatService.StreamTurn(c.Request().Context(), c.Param("id"), req.Message, writeEvent)
	if err != nil {
		// Headers are already out; the failure rides the stream itself.
		writeEvent(agent.StreamEvent{Kind: agent.EventError, Content: err.Error()})
	}
	return nil
}
