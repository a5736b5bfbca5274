package peer

import (
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}

// ICEServers converts configured URLs into a pion ICE server list.
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = DefaultICEServers
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// NewPeerConnection creates a configured PeerConnection.
func NewPeerConnection(iceServers []string, logger *zap.Logger) (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{
		ICEServers: ICEServers(iceServers),
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", zap.Stringer("state", state))
	})
	return pc, nil
}
