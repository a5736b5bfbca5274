package peer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/transport"
)

// Controller is the viewer side of a WebRTC session, used by headless
// clients. It creates the frames and drive channels and sends the offer.
type Controller struct {
	pc     *webrtc.PeerConnection
	frames transport.FrameReceiver
	drive  transport.DriveSender
	opened chan struct{}
	logger *zap.Logger
}

// NewController creates a Controller peer manager.
func NewController(iceServers []string, logger *zap.Logger) (*Controller, error) {
	logger = logger.Named("webrtc")
	pc, err := NewPeerConnection(iceServers, logger)
	if err != nil {
		return nil, err
	}

	framesOrdered := false
	framesMaxRetransmits := uint16(0)
	framesDC, err := pc.CreateDataChannel(transport.FramesLabel, &webrtc.DataChannelInit{
		Ordered:        &framesOrdered,
		MaxRetransmits: &framesMaxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	driveOrdered := true
	driveDC, err := pc.CreateDataChannel(transport.DriveLabel, &webrtc.DataChannelInit{
		Ordered: &driveOrdered,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	channels := transport.NewDataChannelTransport(framesDC, driveDC)
	c := &Controller{
		pc:     pc,
		frames: channels,
		drive:  channels,
		opened: make(chan struct{}),
		logger: logger,
	}
	driveDC.OnOpen(func() {
		logger.Info("drive data channel open")
		close(c.opened)
	})
	return c, nil
}

// Frames returns the receiving side of the frames channel.
func (c *Controller) Frames() transport.FrameReceiver {
	return c.frames
}

// Offer creates the SDP offer with all ICE candidates included.
func (c *Controller) Offer(ctx context.Context) (json.RawMessage, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}

	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	return json.Marshal(c.pc.LocalDescription())
}

// HandleAnswer processes an incoming SDP answer.
func (c *Controller) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(answer)
}

// WaitOpen blocks until the drive channel is open.
func (c *Controller) WaitOpen(ctx context.Context) error {
	select {
	case <-c.opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drive sends a drive command over the data channel.
func (c *Controller) Drive(cmd drive.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.drive.SendDrive(data)
}

// Close shuts down the peer connection.
func (c *Controller) Close() {
	if c.pc != nil {
		c.pc.Close()
	}
}
