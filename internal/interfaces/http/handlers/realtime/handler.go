// Package realtime streams change feed events to browsers over websocket
// and server-sent events.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	sharedConfig "github.com/autocrm-inc/autocrm/internal/shared/config"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
	"github.com/autocrm-inc/autocrm/internal/shared/utils/logutil"
)

const (
	maxFrameSize         = 8192
	maxSubscriptions     = 32
	sendBuffer           = 64
	sseKeepAliveInterval = 30 * time.Second

	TransportWebsocket = "websocket"
	TransportSSE       = "sse"
)

// Client frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
)

// Server frame types.
const (
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	frameEvent        = "event"
	frameError        = "error"
	// frameClosed reports a stream the server ended, typically because the
	// client fell behind. The client should refetch and subscribe again.
	frameClosed = "closed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers authenticate with a bearer token, not cookies, so the origin
	// carries no ambient credentials.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Timings are the websocket keepalive intervals.
type Timings struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

func TimingsFromConfig(cfg sharedConfig.RealtimeConfig) Timings {
	t := Timings{
		WriteWait:  time.Duration(cfg.WriteWaitSecs) * time.Second,
		PongWait:   time.Duration(cfg.PongWaitSecs) * time.Second,
		PingPeriod: time.Duration(cfg.PingPeriodSecs) * time.Second,
	}
	if t.WriteWait <= 0 {
		t.WriteWait = 10 * time.Second
	}
	if t.PongWait <= 0 {
		t.PongWait = 60 * time.Second
	}
	if t.PingPeriod <= 0 || t.PingPeriod >= t.PongWait {
		t.PingPeriod = t.PongWait * 9 / 10
	}
	return t
}

// ClientMetrics counts connected realtime clients.
type ClientMetrics interface {
	ClientConnected(transport string)
	ClientDisconnected(transport string)
}

type nopMetrics struct{}

func (nopMetrics) ClientConnected(string)    {}
func (nopMetrics) ClientDisconnected(string) {}

type clientFrame struct {
	Type    string              `json:"type"`
	ID      string              `json:"id"`
	Request *changefeed.Request `json:"request,omitempty"`
}

type serverFrame struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`
	Request *changefeed.Request `json:"request,omitempty"`
	Event   *changefeed.Event   `json:"event,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Handler multiplexes change feed subscriptions over one connection per
// client.
type Handler struct {
	feed    changefeed.Subscriber
	access  *Access
	timings Timings
	metrics ClientMetrics
	logger  logger.Interface
}

func NewHandler(feed changefeed.Subscriber, access *Access, timings Timings, metrics ClientMetrics, log logger.Interface) *Handler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Handler{
		feed:    feed,
		access:  access,
		timings: timings,
		metrics: metrics,
		logger:  log,
	}
}

// Connect handles GET /realtime
func (h *Handler) Connect(c *gin.Context) {
	userID := middleware.UserID(c)
	role := user.Role(middleware.UserRole(c))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("failed to upgrade to websocket",
			"error", err,
			"user_id", userID,
			"ip", c.ClientIP(),
		)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	s := &session{
		handler: h,
		conn:    conn,
		userID:  userID,
		role:    role,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan serverFrame, sendBuffer),
		subs:    make(map[string]changefeed.Stream),
	}

	h.metrics.ClientConnected(TransportWebsocket)
	h.logger.Infow("realtime websocket connected", "user_id", userID, "ip", c.ClientIP())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()
	s.readPump()

	cancel()
	s.closeAll()
	s.pumps.Wait()
	close(s.send)
	<-writerDone

	h.metrics.ClientDisconnected(TransportWebsocket)
	h.logger.Infow("realtime websocket disconnected", "user_id", userID)
}

type session struct {
	handler *Handler
	conn    *websocket.Conn
	userID  string
	role    user.Role
	ctx     context.Context
	cancel  context.CancelFunc
	send    chan serverFrame

	mu    sync.Mutex
	subs  map[string]changefeed.Stream
	pumps sync.WaitGroup
}

func (s *session) readPump() {
	defer s.conn.Close()

	t := s.handler.timings
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(t.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(t.PongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.handler.logger.Warnw("realtime websocket read error",
					"error", err,
					"user_id", s.userID,
				)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.handler.logger.Debugw("invalid realtime frame",
				"user_id", s.userID,
				"frame", logutil.TruncateForLog(string(data), 200),
			)
			s.enqueue(serverFrame{Type: frameError, Message: "invalid frame"})
			continue
		}

		switch frame.Type {
		case frameSubscribe:
			s.subscribe(frame)
		case frameUnsubscribe:
			s.unsubscribe(frame.ID)
		default:
			s.enqueue(serverFrame{Type: frameError, ID: frame.ID, Message: fmt.Sprintf("unknown frame type %q", frame.Type)})
		}
	}
}

func (s *session) writePump() {
	t := s.handler.timings
	ticker := time.NewTicker(t.PingPeriod)
	defer func() {
		ticker.Stop()
		// Nothing drains send once the writer is gone.
		s.cancel()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(t.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				s.handler.logger.Warnw("failed to write to realtime websocket",
					"error", err,
					"user_id", s.userID,
				)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(t.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue blocks while the writer is behind, which in turn backs up the
// subscription streams until the hub evicts them.
func (s *session) enqueue(f serverFrame) {
	select {
	case s.send <- f:
	case <-s.ctx.Done():
	}
}

func (s *session) subscribe(frame clientFrame) {
	if frame.ID == "" || frame.Request == nil {
		s.enqueue(serverFrame{Type: frameError, ID: frame.ID, Message: "subscribe needs an id and a request"})
		return
	}

	s.mu.Lock()
	_, exists := s.subs[frame.ID]
	n := len(s.subs)
	s.mu.Unlock()
	if exists {
		s.enqueue(serverFrame{Type: frameError, ID: frame.ID, Message: "subscription id already in use"})
		return
	}
	if n >= maxSubscriptions {
		s.enqueue(serverFrame{Type: frameError, ID: frame.ID, Message: fmt.Sprintf("at most %d subscriptions per connection", maxSubscriptions)})
		return
	}

	req, err := s.handler.access.Authorize(s.ctx, s.userID, s.role, *frame.Request)
	if err != nil {
		s.reject(frame.ID, *frame.Request, err)
		return
	}

	stream, err := s.handler.feed.Subscribe(s.ctx, req)
	if err != nil {
		s.reject(frame.ID, req, err)
		return
	}

	s.mu.Lock()
	s.subs[frame.ID] = stream
	s.mu.Unlock()

	s.enqueue(serverFrame{Type: frameSubscribed, ID: frame.ID, Request: &req})
	s.pumps.Add(1)
	go s.pump(frame.ID, stream)

	s.handler.logger.Debugw("realtime subscription opened",
		"user_id", s.userID,
		"subscription", frame.ID,
		"request", req.String(),
	)
}

func (s *session) reject(id string, req changefeed.Request, err error) {
	msg := errors.Message(err, "")
	if !errors.IsAppError(err) {
		s.handler.logger.Errorw("failed to open realtime subscription",
			"error", err,
			"user_id", s.userID,
			"request", req.String(),
		)
		msg = "subscription failed"
	}
	s.enqueue(serverFrame{Type: frameError, ID: id, Message: msg})
}

func (s *session) unsubscribe(id string) {
	s.mu.Lock()
	stream, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if !ok {
		s.enqueue(serverFrame{Type: frameError, ID: id, Message: "unknown subscription"})
		return
	}
	stream.Close()
	s.enqueue(serverFrame{Type: frameUnsubscribed, ID: id})
}

func (s *session) pump(id string, stream changefeed.Stream) {
	defer s.pumps.Done()

	for e := range stream.Events() {
		s.enqueue(serverFrame{Type: frameEvent, ID: id, Event: &e})
	}

	s.mu.Lock()
	if current, ok := s.subs[id]; ok && current == stream {
		delete(s.subs, id)
	}
	s.mu.Unlock()

	if err := stream.Err(); err != nil && s.ctx.Err() == nil {
		s.handler.logger.Warnw("realtime subscription ended",
			"error", err,
			"user_id", s.userID,
			"subscription", id,
		)
		s.enqueue(serverFrame{Type: frameClosed, ID: id, Message: err.Error()})
	}
}

func (s *session) closeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]changefeed.Stream)
	s.mu.Unlock()

	for _, stream := range subs {
		stream.Close()
	}
}

// Events handles GET /realtime/sse
// Streams one subscription given by the table, filter and operations
// query parameters.
func (h *Handler) Events(c *gin.Context) {
	userID := middleware.UserID(c)
	role := user.Role(middleware.UserRole(c))

	req, err := parseQueryRequest(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	req, err = h.access.Authorize(c.Request.Context(), userID, role, req)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	stream, err := h.feed.Subscribe(ctx, req)
	if err != nil {
		h.logger.Errorw("failed to open realtime stream", "error", err, "user_id", userID, "request", req.String())
		utils.ErrorResponseWithError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.metrics.ClientConnected(TransportSSE)
	defer h.metrics.ClientDisconnected(TransportSSE)
	h.logger.Infow("realtime SSE connected", "user_id", userID, "request", req.String())

	if _, err := c.Writer.WriteString(": connected\n\n"); err != nil {
		h.logger.Warnw("SSE initial write error", "user_id", userID, "error", err)
		return
	}
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(sseKeepAliveInterval)
	defer keepAliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("realtime SSE closed by client", "user_id", userID)
			return

		case e, ok := <-stream.Events():
			if !ok {
				msg := "stream closed"
				if err := stream.Err(); err != nil {
					msg = err.Error()
				}
				writeSSE(c, frameClosed, serverFrame{Type: frameClosed, Message: msg})
				return
			}
			if err := writeSSE(c, "change", e); err != nil {
				h.logger.Warnw("SSE write error", "user_id", userID, "error", err)
				return
			}

		case <-keepAliveTicker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				h.logger.Warnw("SSE keepalive error", "user_id", userID, "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeSSE(c *gin.Context, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// parseQueryRequest reads ?table=tickets&filter=customer_id=eq.X&operations=INSERT,UPDATE.
func parseQueryRequest(c *gin.Context) (changefeed.Request, error) {
	req := changefeed.Request{Table: c.Query("table")}
	if req.Table == "" {
		return req, errors.NewValidationError("table is required")
	}
	if raw := c.Query("filter"); raw != "" {
		f, err := changefeed.ParseFilter(raw)
		if err != nil {
			return req, errors.NewValidationError(err.Error())
		}
		req.Filter = f
	}
	if raw := c.Query("operations"); raw != "" {
		for _, op := range strings.Split(raw, ",") {
			op = strings.ToUpper(strings.TrimSpace(op))
			if op == "" {
				continue
			}
			req.Operations = append(req.Operations, changefeed.Operation(op))
		}
	}
	return req, nil
}
