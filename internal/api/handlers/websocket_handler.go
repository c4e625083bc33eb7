package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/middleware/validation"
	"github.com/hr-qa/backend/internal/query"
	"github.com/hr-qa/backend/pkg/logger"
)

// Message is a client frame on /ws/query.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Frame is a server frame. Envelope is only set on "complete".
type Frame struct {
	Type     string               `json:"type"`
	Content  string               `json:"content,omitempty"`
	Error    string               `json:"error,omitempty"`
	Envelope *query.ResultEnvelope `json:"envelope,omitempty"`
}

// frameWriter is the part of *websocket.Conn the streamer writes to.
type frameWriter interface {
	WriteJSON(v interface{}) error
}

type WebSocketHandler struct {
	engine         Engine
	maxQueryLength int
}

func NewWebSocketHandler(engine Engine, maxQueryLength int) *WebSocketHandler {
	return &WebSocketHandler{
		engine:         engine,
		maxQueryLength: maxQueryLength,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg Message
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if err := h.handleMessage(context.Background(), c, msg); err != nil {
			logger.Warn("Failed to write WebSocket frame", zap.Error(err))
			return
		}
	}
}

// handleMessage answers one client frame. Only write failures are returned;
// invalid queries are reported to the client as error frames.
func (h *WebSocketHandler) handleMessage(ctx context.Context, w frameWriter, msg Message) error {
	if msg.Type != "query" {
		return nil
	}

	req := validation.QueryRequest{Query: strings.TrimSpace(msg.Content)}
	if verr := validation.Check(req, h.maxQueryLength); verr != nil {
		return w.WriteJSON(Frame{Type: "error", Error: verr.Message})
	}

	if err := w.WriteJSON(Frame{Type: "status", Content: "Processing query..."}); err != nil {
		return err
	}

	env := h.engine.ProcessQuery(ctx, req.Query)

	for _, chunk := range chunks(env.Response) {
		if err := w.WriteJSON(Frame{Type: "chunk", Content: chunk}); err != nil {
			return err
		}
	}

	return w.WriteJSON(Frame{Type: "complete", Envelope: &env})
}

// chunks splits a response into words, keeping line breaks as their own
// chunks so clients can reassemble the text exactly.
func chunks(text string) []string {
	var out []string
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out = append(out, "\n")
		}
		words := strings.Fields(line)
		for j, word := range words {
			if j < len(words)-1 {
				word += " "
			}
			out = append(out, word)
		}
	}
	return out
}
