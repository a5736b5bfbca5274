package transport

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Data channel labels. The viewer creates both channels; frames is
// unordered without retransmits, drive is ordered and reliable.
const (
	FramesLabel = "frames"
	DriveLabel  = "drive"
)

var (
	ErrNoFramesChannel = errors.New("frames data channel not set")
	ErrNoDriveChannel  = errors.New("drive data channel not set")
)

// DataChannelTransport implements frame and drive transport over WebRTC DataChannels.
type DataChannelTransport struct {
	mu       sync.RWMutex
	framesDC *webrtc.DataChannel
	driveDC  *webrtc.DataChannel

	onFrame func(data []byte)
	onDrive func(data []byte)
}

// NewDataChannelTransport wraps two DataChannels (frames + drive). Either
// may be nil and set later once negotiated.
func NewDataChannelTransport(framesDC, driveDC *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{}
	if framesDC != nil {
		t.SetFramesChannel(framesDC)
	}
	if driveDC != nil {
		t.SetDriveChannel(driveDC)
	}
	return t
}

func (t *DataChannelTransport) SendFrame(data []byte) error {
	t.mu.RLock()
	dc := t.framesDC
	t.mu.RUnlock()
	if dc == nil {
		return ErrNoFramesChannel
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) SendDrive(data []byte) error {
	t.mu.RLock()
	dc := t.driveDC
	t.mu.RUnlock()
	if dc == nil {
		return ErrNoDriveChannel
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) OnFrame(cb func(data []byte)) {
	t.mu.Lock()
	t.onFrame = cb
	t.mu.Unlock()
}

func (t *DataChannelTransport) OnDrive(cb func(data []byte)) {
	t.mu.Lock()
	t.onDrive = cb
	t.mu.Unlock()
}

// FramesBuffered reports bytes queued on the frames channel but not yet sent.
func (t *DataChannelTransport) FramesBuffered() uint64 {
	t.mu.RLock()
	dc := t.framesDC
	t.mu.RUnlock()
	if dc == nil {
		return 0
	}
	return dc.BufferedAmount()
}

// SetFramesChannel sets or replaces the frames DataChannel (used when receiving negotiated channels).
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.deliver(msg.Data, false)
	})
}

// SetDriveChannel sets or replaces the drive DataChannel.
func (t *DataChannelTransport) SetDriveChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.driveDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.deliver(msg.Data, true)
	})
}

func (t *DataChannelTransport) deliver(data []byte, drive bool) {
	t.mu.RLock()
	cb := t.onFrame
	if drive {
		cb = t.onDrive
	}
	t.mu.RUnlock()
	if cb != nil {
		cb(data)
	}
}
