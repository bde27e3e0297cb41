package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

const writeTimeout = 10 * time.Second

// channel is one user's duplex connection.
type channel struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	once   sync.Once
}

func (ch *channel) close(reason string) {
	ch.once.Do(func() {
		ch.cancel()
		_ = ch.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

// attach registers ch for userID, closing the channel it replaces.
func (s *Server) attach(userID string, ch *channel) {
	s.mu.Lock()
	prev := s.channels[userID]
	s.channels[userID] = ch
	s.mu.Unlock()

	if prev != nil {
		s.logger.Info("gateway.channel.replaced", "user_id", userID)
		prev.close("replaced by a new connection")
	}
}

// release drops ch unless a newer channel has taken its place.
func (s *Server) release(userID string, ch *channel) {
	s.mu.Lock()
	if s.channels[userID] == ch {
		delete(s.channels, userID)
	}
	s.mu.Unlock()
}

// handleChannel upgrades GET /ws/:user_id to the user's duplex channel. The
// session survives a disconnect so the client can reconnect.
func (s *Server) handleChannel(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("gateway.channel.accept_failed", "user_id", userID, "error", err)
		return nil
	}

	sess, _ := s.sessions.GetOrCreate(userID)
	sess.SetGlobalChannel(userID)

	ctx, cancel := context.WithCancel(sess.Context())
	ch := &channel{conn: conn, cancel: cancel}
	s.attach(userID, ch)

	sess.Attach()
	s.opts.Metrics.ConnectionOpened()
	log := logging.With(s.logger, "user_id", userID)
	log.Info("gateway.channel.open")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, sess, ch, log)
	}()

	s.readLoop(ctx, userID, ch, log)

	ch.close("connection closed")
	<-writerDone
	s.release(userID, ch)
	sess.Detach()
	s.opts.Metrics.ConnectionClosed()
	log.Info("gateway.channel.closed")
	return nil
}

// readLoop routes inbound text until the connection fails.
func (s *Server) readLoop(ctx context.Context, userID string, ch *channel, log logging.Logger) {
	for {
		typ, data, err := ch.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("gateway.channel.read_failed", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		text := string(data)
		if strings.TrimSpace(text) == core.KeepAliveToken {
			continue
		}
		ack := s.handler.Handle(ctx, userID, text, false)
		log.Debug("gateway.channel.routed", "ack", ack.Message, "ok", ack.OK)
	}
}

// writeLoop drains the session outbox onto the connection and sends
// keep-alive frames. Messages put back by a failed writer go out first; a
// message that cannot be written is put back again.
func (s *Server) writeLoop(ctx context.Context, sess *core.Session, ch *channel, log logging.Logger) {
	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		if msg, ok := sess.TakePending(); ok {
			if !deliver(ctx, sess, ch, msg, log) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-sess.Redelivered():
		case msg := <-sess.Outbox():
			if !deliver(ctx, sess, ch, msg, log) {
				return
			}
		case <-ticker.C:
			if err := write(ctx, ch.conn, core.KeepAliveToken); err != nil {
				log.Debug("gateway.channel.keepalive_failed", "error", err)
				ch.close("keep-alive failed")
				return
			}
		}
	}
}

func deliver(ctx context.Context, sess *core.Session, ch *channel, msg string, log logging.Logger) bool {
	if err := write(ctx, ch.conn, FormatMessage(msg)); err != nil {
		sess.Redeliver(msg)
		log.Debug("gateway.channel.write_failed", "error", err)
		ch.close("write failed")
		return false
	}
	return true
}

func write(ctx context.Context, conn *websocket.Conn, text string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(text))
}
