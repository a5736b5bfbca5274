package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/metrics"
	"github.com/junsooki/AirRover/internal/signaling"
)

const (
	wsReadLimit    = 64 * 1024
	wsWriteTimeout = 5 * time.Second
	wsOfferTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// sessions tracks open websocket control sessions. wg counts every
// session goroutine and in-flight offer so shutdown can join them before
// the motors are released.
type sessions struct {
	srv *HTTPServer

	mu     sync.Mutex
	open   map[string]*session
	closed bool
	wg     sync.WaitGroup
}

func newSessions(srv *HTTPServer) *sessions {
	return &sessions{srv: srv, open: make(map[string]*session)}
}

func (ss *sessions) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ss.srv.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		srv:    ss.srv,
		done:   make(chan struct{}),
		logger: ss.srv.logger.Named("ws"),
	}
	sess.logger = sess.logger.With(zap.String("session", sess.id))

	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		sess.close()
		return
	}
	ss.open[sess.id] = sess
	ss.wg.Add(1)
	ss.mu.Unlock()
	metrics.WSSessions.Inc()
	sess.logger.Info("session opened", zap.String("ip", r.RemoteAddr))

	go func() {
		defer ss.wg.Done()
		sess.run()
		ss.mu.Lock()
		delete(ss.open, sess.id)
		ss.mu.Unlock()
		metrics.WSSessions.Dec()
		sess.logger.Info("session closed")
	}()
}

// track registers a goroutine owned by a session. It reports false once
// shutdown has begun.
func (ss *sessions) track() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.closed {
		return false
	}
	ss.wg.Add(1)
	return true
}

// closeAll closes every session and refuses new ones.
func (ss *sessions) closeAll() {
	ss.mu.Lock()
	ss.closed = true
	open := make([]*session, 0, len(ss.open))
	for _, sess := range ss.open {
		open = append(open, sess)
	}
	ss.mu.Unlock()

	for _, sess := range open {
		sess.close()
	}
}

// wait blocks until every session goroutine has returned or ctx is done.
func (ss *sessions) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ss.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session is one websocket control connection. Every inbound message
// pulses the watchdog before it is decoded.
type session struct {
	id     string
	conn   *websocket.Conn
	srv    *HTTPServer
	logger *zap.Logger

	writeMu    sync.Mutex
	subscribed atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *session) run() {
	defer s.close()

	if err := s.send(signaling.Message{Type: signaling.TypeRegistered, ID: s.id}); err != nil {
		return
	}
	go s.pushFrames()

	s.conn.SetReadLimit(wsReadLimit)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("session read error", zap.Error(err))
			}
			return
		}
		s.srv.rover.Pulse()
		s.handle(data)
	}
}

func (s *session) handle(data []byte) {
	var msg signaling.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError("invalid message")
		return
	}

	switch msg.Type {
	case signaling.TypeDrive:
		var cmd drive.Command
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
				cmd = drive.Command{}
			}
		}
		s.reply(signaling.TypeStatus, s.srv.rover.Drive(cmd, "ws"))
	case signaling.TypeStatus:
		s.reply(signaling.TypeStatus, s.srv.rover.Status())
	case signaling.TypePhoto:
		s.reply(signaling.TypePhoto, s.srv.rover.Photo())
	case signaling.TypeSubscribe:
		s.subscribed.Store(true)
	case signaling.TypeUnsubscribe:
		s.subscribed.Store(false)
	case signaling.TypeOffer:
		s.handleOffer(msg.Payload)
	case signaling.TypePing:
		_ = s.send(signaling.Message{Type: signaling.TypePong, Timestamp: msg.Timestamp})
	default:
		s.sendError("unknown message type " + msg.Type)
	}
}

func (s *session) handleOffer(payload json.RawMessage) {
	if s.srv.viewers == nil {
		s.sendError("webrtc disabled")
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		s.sendError("invalid offer")
		return
	}

	// Answering waits for ICE gathering; do it off the read loop so
	// pulses keep flowing.
	if !s.srv.sessions.track() {
		return
	}
	go func() {
		defer s.srv.sessions.wg.Done()
		ctx, cancel := contextWithDone(s.done, wsOfferTimeout)
		defer cancel()
		answer, err := s.srv.viewers.HandleOffer(ctx, offer)
		if err != nil {
			s.logger.Warn("webrtc offer failed", zap.Error(err))
			s.sendError("offer rejected")
			return
		}
		s.reply(signaling.TypeAnswer, answer)
	}()
}

func (s *session) pushFrames() {
	ticker := time.NewTicker(time.Second / time.Duration(s.srv.opts.DisplayRate))
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		if !s.subscribed.Load() {
			continue
		}
		frame, ok := s.srv.rover.Frame()
		if !ok || frame.Seq == last {
			continue
		}
		if err := s.write(websocket.BinaryMessage, frame.Data); err != nil {
			s.close()
			return
		}
		last = frame.Seq
	}
}

func (s *session) reply(typ string, payload any) {
	msg, err := signaling.NewMessage(typ, payload)
	if err != nil {
		s.logger.Error("marshal reply", zap.String("type", typ), zap.Error(err))
		return
	}
	_ = s.send(msg)
}

func (s *session) sendError(text string) {
	_ = s.send(signaling.Message{Type: signaling.TypeError, Msg: text})
}

func (s *session) send(msg signaling.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

func (s *session) write(mt int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(mt, data)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
	})
}

// contextWithDone returns a context cancelled after timeout or when done
// is closed.
func contextWithDone(done <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
