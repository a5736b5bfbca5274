package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/encoder"
	"github.com/junsooki/AirRover/internal/metrics"
	"github.com/junsooki/AirRover/internal/transport"
)

// maxBuffered is the frames channel backlog above which a push is skipped.
const maxBuffered = 256 * 1024

// Rover is what a viewer may do to the rover.
type Rover interface {
	Pulse()
	Frame() (*encoder.Frame, bool)
	Drive(cmd drive.Command, source string) drive.Status
}

// Host answers WebRTC offers from browser viewers. Each viewer gets its own
// PeerConnection; frames are pushed over the "frames" channel and commands
// arrive on the "drive" channel.
type Host struct {
	rover      Rover
	iceServers []string
	interval   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	viewers map[string]*viewer
	closed  bool
	drives  sync.WaitGroup
}

// NewHost creates a Host pushing frames displayRate times a second.
func NewHost(rover Rover, iceServers []string, displayRate int, logger *zap.Logger) *Host {
	if displayRate <= 0 {
		displayRate = 10
	}
	return &Host{
		rover:      rover,
		iceServers: iceServers,
		interval:   time.Second / time.Duration(displayRate),
		logger:     logger.Named("webrtc"),
		viewers:    make(map[string]*viewer),
	}
}

// HandleOffer creates a viewer for offer and returns the answer once ICE
// gathering has completed, so no trickle exchange is needed.
func (h *Host) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected offer, got %s", offer.Type)
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("webrtc host closed")
	}

	v, err := h.newViewer()
	if err != nil {
		return nil, err
	}

	answer, err := v.answer(ctx, offer)
	if err != nil {
		v.close()
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		v.close()
		return nil, fmt.Errorf("webrtc host closed")
	}
	h.viewers[v.id] = v
	h.mu.Unlock()
	metrics.WebRTCViewers.Inc()

	select {
	case <-v.done:
		h.remove(v.id)
		return nil, fmt.Errorf("viewer closed during negotiation")
	default:
	}

	h.logger.Info("viewer connected", zap.String("viewer", v.id))
	return answer, nil
}

// Count returns the number of live viewers.
func (h *Host) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Close shuts down every viewer, rejects further offers and drive commands,
// and waits for drive commands already in progress.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	viewers := h.viewers
	h.viewers = make(map[string]*viewer)
	h.mu.Unlock()

	for _, v := range viewers {
		v.close()
		metrics.WebRTCViewers.Dec()
	}
	h.drives.Wait()
}

// beginDrive registers an in-flight drive command. It reports false once
// the host is closed; otherwise the caller must call h.drives.Done.
func (h *Host) beginDrive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.drives.Add(1)
	return true
}

func (h *Host) remove(id string) {
	h.mu.Lock()
	_, ok := h.viewers[id]
	delete(h.viewers, id)
	h.mu.Unlock()
	if ok {
		metrics.WebRTCViewers.Dec()
		h.logger.Info("viewer disconnected", zap.String("viewer", id))
	}
}

type viewer struct {
	id     string
	host   *Host
	pc     *webrtc.PeerConnection
	frames transport.FrameSender
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func (h *Host) newViewer() (*viewer, error) {
	id := uuid.NewString()
	logger := h.logger.With(zap.String("viewer", id))

	pc, err := NewPeerConnection(h.iceServers, logger)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	channels := transport.NewDataChannelTransport(nil, nil)
	v := &viewer{
		id:     id,
		host:   h,
		pc:     pc,
		frames: channels,
		logger: logger,
		done:   make(chan struct{}),
	}

	var commands transport.DriveReceiver = channels
	commands.OnDrive(v.onDrive)

	// Accept data channels from the browser.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		logger.Debug("data channel received", zap.String("label", dc.Label()))
		switch dc.Label() {
		case transport.FramesLabel:
			channels.SetFramesChannel(dc)
			dc.OnOpen(func() {
				go v.pushFrames()
			})
		case transport.DriveLabel:
			channels.SetDriveChannel(dc)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", zap.Stringer("state", state))
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			v.close()
			h.remove(v.id)
		}
	})

	return v, nil
}

func (v *viewer) answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := v.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := v.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(v.pc)
	if err := v.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, fmt.Errorf("ice gathering: %w", ctx.Err())
	}
	return v.pc.LocalDescription(), nil
}

// onDrive handles one JSON drive command. Unparseable commands stop the
// rover, like a malformed /set/ request. Commands arriving after Close are
// dropped.
func (v *viewer) onDrive(data []byte) {
	if !v.host.beginDrive() {
		return
	}
	defer v.host.drives.Done()
	v.host.rover.Pulse()

	var cmd drive.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		v.logger.Debug("bad drive command", zap.Error(err))
		cmd = drive.Command{}
	}
	v.host.rover.Drive(cmd, "webrtc")
}

func (v *viewer) pushFrames() {
	ticker := time.NewTicker(v.host.interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
		}

		frame, ok := v.host.rover.Frame()
		if !ok || frame.Seq == last {
			continue
		}
		if v.frames.FramesBuffered() > maxBuffered {
			continue
		}
		if err := v.frames.SendFrame(frame.Data); err != nil {
			v.logger.Debug("send frame", zap.Error(err))
			continue
		}
		last = frame.Seq
	}
}

func (v *viewer) close() {
	v.closeOnce.Do(func() {
		close(v.done)
		if err := v.pc.Close(); err != nil {
			v.logger.Debug("close peer connection", zap.Error(err))
		}
	})
}
