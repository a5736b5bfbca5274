package transport

// FrameSender sends encoded camera frames. FramesBuffered reports the bytes
// queued but not yet sent, so callers can skip a frame under backpressure.
type FrameSender interface {
	SendFrame(data []byte) error
	FramesBuffered() uint64
}

// FrameReceiver receives encoded camera frames.
type FrameReceiver interface {
	OnFrame(callback func(data []byte))
}

// DriveSender sends serialized drive commands.
type DriveSender interface {
	SendDrive(data []byte) error
}

// DriveReceiver receives serialized drive commands.
type DriveReceiver interface {
	OnDrive(callback func(data []byte))
}
