package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/control"
	"github.com/junsooki/AirRover/internal/drive"
)

// echoRover answers drive and photo requests like a rover would.
func echoRover(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(Message{Type: TypeRegistered, ID: "session-1"})
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case TypeDrive:
				var cmd drive.Command
				_ = json.Unmarshal(msg.Payload, &cmd)
				reply, _ := NewMessage(TypeStatus, drive.Status{Servo: cmd.Steering * 100, Left: cmd.Speed * 100, Right: cmd.Speed * 100})
				_ = conn.WriteJSON(reply)
			case TypePhoto:
				reply, _ := NewMessage(TypePhoto, control.PhotoResult{Message: control.PhotoFailedText})
				_ = conn.WriteJSON(reply)
			case TypeSubscribe:
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xd8})
			case TypeOffer:
				_ = conn.WriteJSON(Message{Type: TypeAnswer, Payload: msg.Payload})
			default:
				_ = conn.WriteJSON(Message{Type: TypeError, Msg: "unknown"})
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClient_RoundTrip(t *testing.T) {
	ts := echoRover(t)

	registered := make(chan string, 1)
	statuses := make(chan drive.Status, 1)
	photos := make(chan control.PhotoResult, 1)
	frames := make(chan []byte, 1)
	answers := make(chan json.RawMessage, 1)
	errs := make(chan string, 1)

	c := NewClient(wsURL(ts), Handler{
		OnRegistered: func(id string) { registered <- id },
		OnStatus:     func(s drive.Status) { statuses <- s },
		OnPhoto:      func(r control.PhotoResult) { photos <- r },
		OnFrame:      func(b []byte) { frames <- b },
		OnAnswer:     func(p json.RawMessage) { answers <- p },
		OnError:      func(m string) { errs <- m },
	}, zap.NewNop())

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, "session-1", receive(t, registered))

	require.NoError(t, c.SendDrive(drive.Command{Speed: 0.5, Steering: -0.5}))
	assert.Equal(t, drive.Status{Servo: -50, Left: 50, Right: 50}, receive(t, statuses))

	require.NoError(t, c.RequestPhoto())
	assert.Equal(t, control.PhotoFailedText, receive(t, photos).Message)

	require.NoError(t, c.Subscribe())
	assert.Equal(t, []byte{0xff, 0xd8}, receive(t, frames))

	require.NoError(t, c.SendOffer(json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(receive(t, answers)))

	require.NoError(t, c.RequestStatus())
	assert.Equal(t, "unknown", receive(t, errs))
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", Handler{}, zap.NewNop())
	assert.ErrorIs(t, c.SendDrive(drive.Command{}), ErrNotConnected)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	ts := echoRover(t)
	c := NewClient(wsURL(ts), Handler{}, zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	c.Close()
	<-c.Done()
	assert.ErrorIs(t, c.RequestPhoto(), ErrNotConnected)
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}
