package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatbridge/internal/models"
	"chatbridge/internal/router"
	"chatbridge/internal/translator"
)

// sseWriter commits the event-stream headers on first use, so failures before
// any output still get a regular JSON error response.
type sseWriter struct {
	c       echo.Context
	flusher http.Flusher
	started bool
	failed  bool
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	w.started = true

	header := w.c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.c.Response().WriteHeader(http.StatusOK)
}

func (w *sseWriter) send(payload any) {
	if w.failed {
		return
	}
	w.start()
	if err := writeSSEData(w.c.Response(), payload); err != nil {
		slog.Error("failed to write SSE event", "err", err)
		w.failed = true
		return
	}
	w.flusher.Flush()
}

func (w *sseWriter) done() {
	if w.failed {
		return
	}
	w.start()
	if _, err := fmt.Fprint(w.c.Response(), "data: [DONE]\n\n"); err != nil {
		slog.Error("failed to write SSE terminator", "err", err)
		return
	}
	w.flusher.Flush()
}

func (s *Server) streamChat(ctx context.Context, c echo.Context, ep *router.Endpoint, req models.UnifiedChatRequest) error {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	w := &sseWriter{c: c, flusher: flusher}
	_, err := ep.Chat(ctx, req, func(delta string) {
		w.send(translator.StreamDelta{Delta: delta})
	})
	if err != nil {
		if !w.started {
			return toHTTPError(err)
		}
		reqErr := toHTTPError(err)
		w.send(translator.StreamError{Error: translator.ErrorBody{
			Message: reqErr.Message,
			Type:    reqErr.Type,
			Code:    reqErr.Code,
		}})
		return nil
	}

	w.done()
	return nil
}

func writeSSEData(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
