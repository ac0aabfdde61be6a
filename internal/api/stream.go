package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	maxClientMessage = 512
)

// channelSubscriber is a one-slot mailbox between the broadcaster and a
// connection handler. Every payload is a complete listing, so a newer one
// replaces a frame the handler has not picked up yet. Send never blocks
// and never fails because the client is slow; the subscriber only goes
// away when its connection does.
type channelSubscriber struct {
	id     string
	frames chan []byte
}

func newChannelSubscriber(kind string) *channelSubscriber {
	return &channelSubscriber{
		id:     kind + "-" + uuid.NewString(),
		frames: make(chan []byte, 1),
	}
}

func (s *channelSubscriber) ID() string { return s.id }

func (s *channelSubscriber) Send(_ context.Context, payload []byte) error {
	for {
		select {
		case s.frames <- payload:
			return nil
		default:
		}
		// Full: discard the stale frame, unless the handler just took it.
		select {
		case <-s.frames:
		default:
		}
	}
}

// handleEvents streams the listing as server-sent events: one snapshot
// on connect and one per directory change, with comment heartbeats in
// between.
func (s *Server) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	sub := newChannelSubscriber("sse")

	if err := s.broadcaster.Subscribe(ctx, sub); err != nil {
		s.logger.Warn(ctx, "failed to subscribe", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
		return
	}
	defer s.broadcaster.Unsubscribe(sub.ID())

	header := c.Writer.Header()
	header.Set("Content-Type", sse.ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case payload := <-sub.frames:
			if err := sse.Encode(c.Writer, sse.Event{Event: "snapshot", Data: string(payload)}); err != nil {
				s.logger.Debug(ctx, "event stream closed", "id", sub.ID(), "error", err)
				return
			}
			c.Writer.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": keepalive\n\n"); err != nil {
				s.logger.Debug(ctx, "event stream closed", "id", sub.ID(), "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// handleWebSocket pushes the same JSON listing as handleEvents, one text
// message per snapshot. Pings keep the connection honest; anything the
// client sends is discarded.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := newChannelSubscriber("ws")
	if err := s.broadcaster.Subscribe(ctx, sub); err != nil {
		s.logger.Warn(ctx, "failed to subscribe", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "live updates unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer s.broadcaster.Unsubscribe(sub.ID())

	pongWait := 2 * s.heartbeat
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.heartbeat)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case payload := <-sub.frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug(ctx, "websocket closed", "id", sub.ID(), "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug(ctx, "websocket closed", "id", sub.ID(), "error", err)
				return
			}
		}
	}
}
