package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/control"
	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/encoder"
	"github.com/junsooki/AirRover/internal/metrics"
	"github.com/junsooki/AirRover/internal/signaling"
	"github.com/junsooki/AirRover/internal/watchdog"
)

type fakeRover struct {
	mu     sync.Mutex
	pulses int
	frame  *encoder.Frame
	drives []drive.Command
	photo  control.PhotoResult
}

func (r *fakeRover) Pulse() {
	r.mu.Lock()
	r.pulses++
	r.mu.Unlock()
}

func (r *fakeRover) Frame() (*encoder.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame, r.frame != nil
}

func (r *fakeRover) Drive(cmd drive.Command, source string) drive.Status {
	r.mu.Lock()
	r.drives = append(r.drives, cmd)
	r.mu.Unlock()
	out := cmd.Map()
	return drive.NewStatus(out.Left, out.Right, out.Servo, 1)
}

func (r *fakeRover) Photo() control.PhotoResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.photo
}

func (r *fakeRover) Status() drive.Status {
	return drive.Status{Servo: 25, Left: 100, Right: 50}
}

func (r *fakeRover) setFrame(f *encoder.Frame) {
	r.mu.Lock()
	r.frame = f
	r.mu.Unlock()
}

func (r *fakeRover) pulseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pulses
}

func (r *fakeRover) lastDrive() drive.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drives[len(r.drives)-1]
}

type fixedState watchdog.State

func (s fixedState) State() watchdog.State { return watchdog.State(s) }

type fakeViewers struct {
	err error
}

func (v *fakeViewers) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer:" + offer.SDP}, nil
}

func newTestServer(t *testing.T, rover *fakeRover, viewers OfferHandler) *HTTPServer {
	t.Helper()
	opts := Options{
		Addr:         "127.0.0.1:0",
		ImageWidth:   240,
		ImageHeight:  192,
		DisplayRate:  50,
		MaximumWidth: 1000,
	}
	s, err := NewHTTPServer(opts, rover, fixedState(watchdog.Connected), viewers, zap.NewNop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSnapshot(t *testing.T) {
	rover := &fakeRover{}
	s := newTestServer(t, rover, nil)

	rec := get(t, s.Handler(), "/cam.jpg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes(), "no frame yet")

	rover.setFrame(&encoder.Frame{Data: []byte{0xff, 0xd8, 0xff}, Seq: 1})
	rec = get(t, s.Handler(), "/cam.jpg?0.123")
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, rec.Body.Bytes())
}

func TestSetDrive(t *testing.T) {
	rover := &fakeRover{}
	s := newTestServer(t, rover, nil)

	rec := get(t, s.Handler(), "/set/1/-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, drive.Command{Speed: 1, Steering: -1}, rover.lastDrive())
	body := rec.Body.String()
	assert.Contains(t, body, "Servo: -100 %")
	assert.Contains(t, body, "Left: 50 %")
	assert.Contains(t, body, "Right: 100 %")
}

func TestSetDrive_MalformedStops(t *testing.T) {
	for _, path := range []string{"/set/abc/xyz", "/set/", "/set/0.5", "/set/nan/0"} {
		t.Run(path, func(t *testing.T) {
			rover := &fakeRover{}
			s := newTestServer(t, rover, nil)

			rec := get(t, s.Handler(), path)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, drive.Command{}, rover.lastDrive())
			assert.Contains(t, rec.Body.String(), "Servo: 0 %")
		})
	}
}

func TestSetDrive_ClampsOutOfRange(t *testing.T) {
	rover := &fakeRover{}
	s := newTestServer(t, rover, nil)

	get(t, s.Handler(), "/set/5/-3")
	assert.Equal(t, drive.Command{Speed: 1, Steering: -1}, rover.lastDrive())
}

func TestPhoto(t *testing.T) {
	rover := &fakeRover{photo: control.PhotoResult{Message: control.PhotoFailedText}}
	s := newTestServer(t, rover, nil)

	rec := get(t, s.Handler(), "/photo")
	assert.Contains(t, rec.Body.String(), "Failed to take photo!")
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)

	rec := get(t, s.Handler(), "/status")
	assert.Contains(t, rec.Body.String(), "Servo: 25 %")

	rec = get(t, s.Handler(), "/status?format=json")
	var status drive.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, drive.Status{Servo: 25, Left: 100, Right: 50}, status)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)

	rec := get(t, s.Handler(), "/healthz")
	assert.JSONEq(t, `{"watchdog":"connected","has_frame":false}`, rec.Body.String())
}

func TestPages(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)

	rec := get(t, s.Handler(), "/")
	assert.Contains(t, rec.Body.String(), "max-width:1000px")
	assert.Contains(t, rec.Body.String(), `src="/stream"`)

	rec = get(t, s.Handler(), "/stream")
	assert.Contains(t, rec.Body.String(), "20")
	assert.Contains(t, rec.Body.String(), `src="/cam.jpg"`)
}

func TestUnknownPathEchoed(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)

	rec := get(t, s.Handler(), "/nope?x=1")
	assert.Equal(t, `Path : "/nope?x=1"`, rec.Body.String())
}

func TestWrongMethodEchoed(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)

	for _, path := range []string{"/cam.jpg", "/set/0.5/0", "/status"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, `Path : "`+path+`"`, rec.Body.String())
	}
}

func TestUnknownPathRecorded(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)
	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, unmatchedPath, "200")
	before := testutil.ToFloat64(counter)

	get(t, s.Handler(), "/nope")
	get(t, s.Handler(), "/also/nope")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestEveryRequestPulses(t *testing.T) {
	rover := &fakeRover{}
	s := newTestServer(t, rover, nil)

	for _, path := range []string{"/cam.jpg", "/set/abc/xyz", "/photo", "/unknown", "/", "/healthz"} {
		get(t, s.Handler(), path)
	}
	assert.Equal(t, 6, rover.pulseCount())
}

func TestWebRTCOffer(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, &fakeViewers{})

	body := `{"type":"offer","sdp":"v=0"}`
	req := httptest.NewRequest(http.MethodPost, "/webrtc/offer", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var answer webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, "answer:v=0", answer.SDP)
}

func TestWebRTCOffer_Rejected(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, &fakeViewers{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodPost, "/webrtc/offer", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webrtc/offer", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func dialWS(t *testing.T, s *HTTPServer) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) signaling.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg signaling.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocket_DriveAndStatus(t *testing.T) {
	rover := &fakeRover{}
	s := newTestServer(t, rover, nil)
	conn := dialWS(t, s)

	msg := readMessage(t, conn)
	assert.Equal(t, signaling.TypeRegistered, msg.Type)
	assert.NotEmpty(t, msg.ID)

	drv, err := signaling.NewMessage(signaling.TypeDrive, drive.Command{Speed: 1, Steering: 1})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(drv))

	msg = readMessage(t, conn)
	require.Equal(t, signaling.TypeStatus, msg.Type)
	var status drive.Status
	require.NoError(t, json.Unmarshal(msg.Payload, &status))
	assert.Equal(t, drive.Status{Servo: 100, Left: 100, Right: 50}, status)

	// Bad payload falls back to stop.
	require.NoError(t, conn.WriteJSON(signaling.Message{Type: signaling.TypeDrive, Payload: json.RawMessage(`"fast"`)}))
	msg = readMessage(t, conn)
	require.Equal(t, signaling.TypeStatus, msg.Type)
	assert.Equal(t, drive.Command{}, rover.lastDrive())

	require.NoError(t, conn.WriteJSON(signaling.Message{Type: signaling.TypePing, Timestamp: 42}))
	msg = readMessage(t, conn)
	assert.Equal(t, signaling.TypePong, msg.Type)
	assert.Equal(t, int64(42), msg.Timestamp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	msg = readMessage(t, conn)
	assert.Equal(t, signaling.TypeError, msg.Type)

	// Registered message aside, each inbound message pulsed: drive, drive,
	// ping, garbage, plus the upgrade request itself.
	assert.Equal(t, 5, rover.pulseCount())
}

func TestWebsocket_SubscribePushesFrames(t *testing.T) {
	rover := &fakeRover{}
	rover.setFrame(&encoder.Frame{Data: []byte("frame-1"), Seq: 1})
	s := newTestServer(t, rover, nil)
	conn := dialWS(t, s)

	readMessage(t, conn)
	require.NoError(t, conn.WriteJSON(signaling.Message{Type: signaling.TypeSubscribe}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte("frame-1"), data)

	rover.setFrame(&encoder.Frame{Data: []byte("frame-2"), Seq: 2})
	mt, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte("frame-2"), data)
}

func TestWebsocket_ShutdownClosesSessions(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)
	conn := dialWS(t, s)
	readMessage(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

// stalledRover blocks inside Drive until release is closed.
type stalledRover struct {
	*fakeRover
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStalledRover() *stalledRover {
	return &stalledRover{
		fakeRover: &fakeRover{},
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (r *stalledRover) Drive(cmd drive.Command, source string) drive.Status {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return r.fakeRover.Drive(cmd, source)
}

func TestWebsocket_ShutdownWaitsForDrive(t *testing.T) {
	rover := newStalledRover()
	opts := Options{Addr: "127.0.0.1:0", ImageWidth: 240, ImageHeight: 192, DisplayRate: 50, MaximumWidth: 1000}
	s, err := NewHTTPServer(opts, rover, fixedState(watchdog.Connected), nil, zap.NewNop())
	require.NoError(t, err)
	conn := dialWS(t, s)
	readMessage(t, conn)

	drv, err := signaling.NewMessage(signaling.TypeDrive, drive.Command{Speed: 1})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(drv))

	select {
	case <-rover.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("drive never reached the rover")
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.Shutdown(ctx)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a drive was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(rover.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after the drive finished")
	}
	assert.Equal(t, drive.Command{Speed: 1}, rover.lastDrive())
}

func TestWebsocket_ShutdownDeadline(t *testing.T) {
	rover := newStalledRover()
	defer close(rover.release)
	opts := Options{Addr: "127.0.0.1:0", ImageWidth: 240, ImageHeight: 192, DisplayRate: 50, MaximumWidth: 1000}
	s, err := NewHTTPServer(opts, rover, fixedState(watchdog.Connected), nil, zap.NewNop())
	require.NoError(t, err)
	conn := dialWS(t, s)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(signaling.Message{Type: signaling.TypeDrive}))
	<-rover.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
}

func TestWebsocket_RefusedAfterShutdown(t *testing.T) {
	s := newTestServer(t, &fakeRover{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	conn := dialWS(t, s)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
