package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/control"
	"github.com/junsooki/AirRover/internal/drive"
)

// ErrNotConnected is returned by senders before Connect succeeds.
var ErrNotConnected = errors.New("not connected")

const (
	writeTimeout = 5 * time.Second
	pingInterval = 25 * time.Second
)

// Handler callbacks for incoming control messages.
type Handler struct {
	OnRegistered func(sessionID string)
	OnStatus     func(status drive.Status)
	OnPhoto      func(result control.PhotoResult)
	OnFrame      func(jpeg []byte)
	OnAnswer     func(payload json.RawMessage)
	OnError      func(msg string)
}

// Client is a websocket control client for a rover.
type Client struct {
	url     string
	handler Handler
	logger  *zap.Logger

	conn   *websocket.Conn
	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewClient creates a control client for the websocket at url.
func NewClient(url string, handler Handler, logger *zap.Logger) *Client {
	return &Client{
		url:     url,
		handler: handler,
		logger:  logger.Named("signaling"),
		done:    make(chan struct{}),
	}
}

// Connect dials the rover and starts reading messages.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("control dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Done is closed when the connection has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts down the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

// SendDrive asks the rover to apply cmd. The rover replies with a status.
func (c *Client) SendDrive(cmd drive.Command) error {
	msg, err := NewMessage(TypeDrive, cmd)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// RequestPhoto asks the rover to save its current frame.
func (c *Client) RequestPhoto() error {
	return c.send(Message{Type: TypePhoto})
}

// RequestStatus asks for the current motor state.
func (c *Client) RequestStatus() error {
	return c.send(Message{Type: TypeStatus})
}

// Subscribe starts the binary frame push.
func (c *Client) Subscribe() error {
	return c.send(Message{Type: TypeSubscribe})
}

// SendOffer sends a WebRTC SDP offer. The answer arrives via OnAnswer.
func (c *Client) SendOffer(payload json.RawMessage) error {
	return c.send(Message{Type: TypeOffer, Payload: payload})
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("control read error", zap.Error(err))
			}
			return
		}
		if mt == websocket.BinaryMessage {
			if c.handler.OnFrame != nil {
				c.handler.OnFrame(data)
			}
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("bad control message", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case TypeRegistered:
		if c.handler.OnRegistered != nil {
			c.handler.OnRegistered(msg.ID)
		}
	case TypeStatus:
		var status drive.Status
		if err := json.Unmarshal(msg.Payload, &status); err != nil {
			c.logger.Warn("bad status payload", zap.Error(err))
			return
		}
		if c.handler.OnStatus != nil {
			c.handler.OnStatus(status)
		}
	case TypePhoto:
		var result control.PhotoResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			c.logger.Warn("bad photo payload", zap.Error(err))
			return
		}
		if c.handler.OnPhoto != nil {
			c.handler.OnPhoto(result)
		}
	case TypeAnswer:
		if c.handler.OnAnswer != nil {
			c.handler.OnAnswer(msg.Payload)
		}
	case TypeError:
		if c.handler.OnError != nil {
			c.handler.OnError(msg.Msg)
		}
	case TypePong:
		// heartbeat response, nothing to do
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.send(Message{Type: TypePing, Timestamp: time.Now().UnixMilli()})
		}
	}
}
