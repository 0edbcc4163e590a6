package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/pipeline"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024

	// DefaultMaxInFlight caps concurrent requests on one connection.
	DefaultMaxInFlight = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer and the authenticator.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is a WebSocket message in either direction. Clients send "generate"
// or "usage"; the server answers with "result", "usage" or "error" carrying
// the same ID.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

type wsConn struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *wsConn) write(msgType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

func (c *wsConn) send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Msg("marshal websocket frame")
		return
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("user", c.userID).Msg("websocket write")
	}
}

func (c *wsConn) sendError(id string, err error) {
	_, body := errorBody(err)
	c.send(Frame{Type: "error", ID: id, Error: &body})
}

func (c *wsConn) sendValue(typ, id string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.sendError(id, apperr.Wrap(apperr.Internal, err, "encode response"))
		return
	}
	c.send(Frame{Type: typ, ID: id, Payload: payload})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{conn: conn, userID: userID}

	// Requests in flight are cancelled when the connection goes away.
	ctx, cancel := context.WithCancel(context.Background())
	limit := s.MaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}
	var inflight errgroup.Group
	inflight.SetLimit(limit)
	defer func() {
		cancel()
		_ = inflight.Wait()
		_ = conn.Close()
	}()

	go c.pingLoop(ctx)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user", userID).Msg("websocket closed unexpectedly")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.sendError("", apperr.Wrap(apperr.InvalidRequest, err, "invalid frame"))
			continue
		}
		started := inflight.TryGo(func() error {
			s.dispatch(ctx, c, f)
			return nil
		})
		if !started {
			c.sendError(f.ID, apperr.E(apperr.InvalidRequest, "too many requests in flight on this connection; the limit is %d", limit))
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, f Frame) {
	switch f.Type {
	case "generate":
		var in pipeline.Input
		if err := json.Unmarshal(f.Payload, &in); err != nil {
			c.sendError(f.ID, apperr.Wrap(apperr.InvalidRequest, err, "invalid generate payload"))
			return
		}
		if err := s.validateInput(in); err != nil {
			c.sendError(f.ID, err)
			return
		}
		resp, err := s.Service.Generate(ctx, c.userID, in)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.sendError(f.ID, err)
			return
		}
		c.sendValue("result", f.ID, resp)
	case "usage":
		u, err := s.Service.Usage(ctx, c.userID)
		if err != nil {
			c.sendError(f.ID, err)
			return
		}
		c.sendValue("usage", f.ID, u)
	default:
		c.sendError(f.ID, apperr.E(apperr.InvalidRequest, "unknown frame type %q", f.Type))
	}
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
