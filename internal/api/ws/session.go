package ws

import (
	"context"
	"html"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
)

const (
	// writeTimeout bounds one frame write; a renderer that stops reading
	// is disconnected rather than blocking the session
	writeTimeout = 10 * time.Second

	// maxOpsPerFrame caps how many queued operations coalesce into one
	// operations frame
	maxOpsPerFrame = 64
)

// Message is the renderer-to-host envelope. Tool calls reuse the sandbox
// boundary format and are re-decoded from the raw frame, so the envelope
// only needs the routing fields here.
type Message struct {
	Type       string `json:"type"`
	FragmentID string `json:"fragmentId,omitempty"`
	Code       string `json:"code,omitempty"`
	Event      string `json:"event,omitempty"`
}

// operationsFrame carries a batch of scrubbed operations to the renderer
type operationsFrame struct {
	Type       string               `json:"type"`
	FragmentID string               `json:"fragmentId"`
	Operations []protocol.Operation `json:"operations"`
}

// session serves one renderer connection. Writes are serialized: the read
// loop and every stream goroutine share the connection.
type session struct {
	id      string
	conn    *websocket.Conn
	handler *Handler
	logger  *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	attached map[string]chan struct{} // Fragment id -> stream stop signal
}

func (s *session) run(ctx context.Context) {
	defer s.close()

	if m := s.handler.metrics; m != nil {
		m.IncWSConnections()
		defer m.DecWSConnections()
	}
	s.logger.Info("renderer connected")

	s.send("connected", map[string]interface{}{
		"type":      "connected",
		"sessionId": s.id,
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("renderer read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.sendError("", "malformed message")
			continue
		}
		if m := s.handler.metrics; m != nil {
			m.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case "attach":
			s.handleAttach(msg)
		case "detach":
			s.handleDetach(msg)
		case protocol.MessageTool:
			s.handleTool(ctx, msg, data)
		case "execute":
			s.handleExecute(ctx, msg)
		case "event":
			s.handleEvent(ctx, msg)
		case "ping":
			s.send("pong", map[string]interface{}{"type": "pong"})
		default:
			s.sendError(msg.FragmentID, "unknown message type")
		}
	}
}

// handleAttach subscribes the renderer to a fragment's operation stream
func (s *session) handleAttach(msg Message) {
	if msg.FragmentID == "" {
		s.sendError("", "attach requires fragmentId")
		return
	}

	ops, done, err := s.handler.fragments.Stream(msg.FragmentID)
	if err != nil {
		s.sendError(msg.FragmentID, err.Error())
		return
	}

	s.mu.Lock()
	if _, dup := s.attached[msg.FragmentID]; dup {
		s.mu.Unlock()
		s.sendError(msg.FragmentID, "already attached")
		return
	}
	stop := make(chan struct{})
	s.attached[msg.FragmentID] = stop
	s.mu.Unlock()

	go s.stream(msg.FragmentID, ops, done, stop)

	s.send("attached", map[string]interface{}{
		"type":       "attached",
		"fragmentId": msg.FragmentID,
	})
}

// handleDetach stops a fragment's stream without touching the fragment
func (s *session) handleDetach(msg Message) {
	s.mu.Lock()
	stop, ok := s.attached[msg.FragmentID]
	if ok {
		delete(s.attached, msg.FragmentID)
	}
	s.mu.Unlock()

	if !ok {
		s.sendError(msg.FragmentID, "not attached")
		return
	}
	close(stop)

	s.send("detached", map[string]interface{}{
		"type":       "detached",
		"fragmentId": msg.FragmentID,
	})
}

// handleTool routes a rendered-UI tool call to the fragment's gateway. The
// raw frame is decoded again so the boundary format stays authoritative.
func (s *session) handleTool(ctx context.Context, msg Message, data []byte) {
	if msg.FragmentID == "" {
		s.sendError("", "tool call requires fragmentId")
		return
	}

	call, err := protocol.DecodeToolCall(data)
	if err != nil {
		s.sendError(msg.FragmentID, err.Error())
		return
	}

	resp, err := s.handler.fragments.HandleTool(ctx, msg.FragmentID, call)
	if err != nil {
		resp = protocol.NewToolError(call.MessageID, err)
	}
	s.send(resp.Type, resp)
}

// handleExecute runs code inside a live fragment's sandbox
func (s *session) handleExecute(ctx context.Context, msg Message) {
	if msg.FragmentID == "" || msg.Code == "" {
		s.sendError(msg.FragmentID, "execute requires fragmentId and code")
		return
	}

	res, err := s.handler.fragments.Execute(ctx, msg.FragmentID, msg.Code)
	if err != nil {
		s.sendError(msg.FragmentID, err.Error())
		return
	}

	s.send("executed", map[string]interface{}{
		"type":       "executed",
		"fragmentId": msg.FragmentID,
		"result":     res,
	})
}

// handleEvent dispatches a user interaction to a listener the fragment
// registered. Resulting operations arrive through the stream.
func (s *session) handleEvent(ctx context.Context, msg Message) {
	if msg.FragmentID == "" || msg.Event == "" {
		s.sendError(msg.FragmentID, "event requires fragmentId and event")
		return
	}

	if _, err := s.handler.fragments.DispatchEvent(ctx, msg.FragmentID, msg.Event); err != nil {
		s.sendError(msg.FragmentID, err.Error())
		return
	}

	s.send("dispatched", map[string]interface{}{
		"type":       "dispatched",
		"fragmentId": msg.FragmentID,
		"event":      msg.Event,
	})
}

// stream forwards a fragment's operations until the fragment closes, the
// renderer detaches, or a write fails. Consecutive ready operations
// coalesce into one frame.
func (s *session) stream(fragID string, ops <-chan protocol.Operation, done <-chan struct{}, stop chan struct{}) {
	for {
		select {
		case op := <-ops:
			batch := s.collect(ops, &op)
			if err := s.send("operations", operationsFrame{
				Type:       "operations",
				FragmentID: fragID,
				Operations: batch,
			}); err != nil {
				return
			}
		case <-done:
			// Forward whatever the sandbox emitted before closing
			if batch := s.collect(ops, nil); len(batch) > 0 {
				s.send("operations", operationsFrame{
					Type:       "operations",
					FragmentID: fragID,
					Operations: batch,
				})
			}
			s.send("closed", map[string]interface{}{
				"type":       "closed",
				"fragmentId": fragID,
			})
			s.forget(fragID)
			return
		case <-stop:
			return
		}
	}
}

// collect gathers the operations ready on the channel without blocking,
// scrubbing each, optionally seeded with an already-received first element
func (s *session) collect(ops <-chan protocol.Operation, first *protocol.Operation) []protocol.Operation {
	var batch []protocol.Operation
	if first != nil {
		batch = append(batch, s.scrubOp(*first))
	}
	for len(batch) < maxOpsPerFrame {
		select {
		case op := <-ops:
			batch = append(batch, s.scrubOp(op))
		default:
			return batch
		}
	}
	return batch
}

// scrubOp strips markup from renderer-bound values. Text and attribute
// values are plain text on the renderer side; entities are unescaped after
// the policy runs so literal ampersands survive the round trip.
func (s *session) scrubOp(op protocol.Operation) protocol.Operation {
	if op.TextContent != "" {
		op.TextContent = s.scrubText(op.TextContent)
	}
	if op.AttributeValue != "" {
		op.AttributeValue = s.scrubText(op.AttributeValue)
	}
	return op
}

func (s *session) scrubText(v string) string {
	return html.UnescapeString(s.handler.scrub.Sanitize(v))
}

// forget drops a finished stream's attachment entry
func (s *session) forget(fragID string) {
	s.mu.Lock()
	delete(s.attached, fragID)
	s.mu.Unlock()
}

func (s *session) send(msgType string, v interface{}) error {
	if m := s.handler.metrics; m != nil {
		m.RecordWSMessage("out", msgType)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *session) sendError(fragID, message string) error {
	frame := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if fragID != "" {
		frame["fragmentId"] = fragID
	}
	return s.send("error", frame)
}

// close stops every stream and releases the connection
func (s *session) close() {
	s.mu.Lock()
	for fragID, stop := range s.attached {
		close(stop)
		delete(s.attached, fragID)
	}
	s.mu.Unlock()

	s.conn.Close()
	s.logger.Info("renderer disconnected")
}
