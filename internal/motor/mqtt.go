package motor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttQoS        = 1
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTConfig locates the broker and the board bridge's topic prefix.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// Payloads published to <topic>/drive, /steering, /led and /stop.
type (
	DriveMessage struct {
		Left  float64 `json:"left"`
		Right float64 `json:"right"`
	}
	SteeringMessage struct {
		Position float64 `json:"position"`
	}
	LedMessage struct {
		On bool `json:"on"`
	}
	StopMessage struct {
		Timestamp int64 `json:"timestamp"`
	}
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTBoard forwards motor commands to a microcontroller bridge over MQTT
// and remembers the last commanded state for read-back.
type MQTTBoard struct {
	mu     sync.Mutex
	client publisher
	topic  string
	logger *zap.Logger

	left, right, steering float64
	led                   bool

	disconnect func()
}

// NewMQTTBoard connects to the broker and returns a board publishing under cfg.Topic.
func NewMQTTBoard(cfg MQTTConfig, logger *zap.Logger) (*MQTTBoard, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(true)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	b := newMQTTBoard(client, cfg.Topic, logger)
	b.disconnect = func() { client.Disconnect(250) }
	b.logger.Info("connected to motor bridge", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))
	return b, nil
}

func newMQTTBoard(client publisher, topic string, logger *zap.Logger) *MQTTBoard {
	return &MQTTBoard{
		client: client,
		topic:  topic,
		logger: logger.Named("motor"),
	}
}

func (b *MQTTBoard) SetDriveOutputs(left, right float64) {
	b.mu.Lock()
	b.left, b.right = left, right
	tok := b.publish("drive", DriveMessage{Left: left, Right: right})
	b.mu.Unlock()
	b.wait("drive", tok)
}

func (b *MQTTBoard) SetSteering(position float64) {
	b.mu.Lock()
	b.steering = position
	tok := b.publish("steering", SteeringMessage{Position: position})
	b.mu.Unlock()
	b.wait("steering", tok)
}

func (b *MQTTBoard) Stop() {
	b.mu.Lock()
	b.left, b.right = 0, 0
	tok := b.publish("stop", StopMessage{Timestamp: time.Now().UnixMilli()})
	b.mu.Unlock()
	b.wait("stop", tok)
}

func (b *MQTTBoard) SetIndicatorLed(on bool) {
	b.mu.Lock()
	b.led = on
	tok := b.publish("led", LedMessage{On: on})
	b.mu.Unlock()
	b.wait("led", tok)
}

func (b *MQTTBoard) IndicatorLed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.led
}

func (b *MQTTBoard) DriveOutputs() (left, right float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.left, b.right
}

func (b *MQTTBoard) Steering() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.steering
}

func (b *MQTTBoard) Close() error {
	if b.disconnect != nil {
		b.disconnect()
	}
	return nil
}

// publish must be called with b.mu held so messages leave in call order.
func (b *MQTTBoard) publish(suffix string, msg any) mqtt.Token {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal motor command", zap.String("command", suffix), zap.Error(err))
		return nil
	}
	return b.client.Publish(b.topic+"/"+suffix, mqttQoS, false, data)
}

func (b *MQTTBoard) wait(suffix string, tok mqtt.Token) {
	if tok == nil {
		return
	}
	if !tok.WaitTimeout(publishTimeout) {
		b.logger.Warn("motor command not acknowledged", zap.String("command", suffix))
		return
	}
	if err := tok.Error(); err != nil {
		b.logger.Warn("motor command failed", zap.String("command", suffix), zap.Error(err))
	}
}
