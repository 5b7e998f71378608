package dispatch

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rjboer/beam1090/internal/modes"
)

// MQTTConfig describes a broker publication target.
type MQTTConfig struct {
	Broker   string        // e.g. tcp://localhost:1883
	Topic    string        // base topic, default "beam1090/frames"
	Username string
	Password string
	ClientID string        // default "beam1090-<random>"
	Timeout  time.Duration // connect wait, default 5s
	Logger   *slog.Logger
}

// MQTTSink publishes one JSON record per frame under <topic>/df<n>.
// Publishes are fire-and-forget at QoS 0; the paho client reconnects
// on its own when the broker drops.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

type frameRecord struct {
	Time     time.Time `json:"time"`
	DF       uint8     `json:"df"`
	ICAO     string    `json:"icao,omitempty"`
	Hex      string    `json:"hex"`
	Score    float64   `json:"score"`
	Repaired int       `json:"repaired,omitempty"`
}

// NewMQTTSink connects to the broker and returns the sink.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("broker address is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "beam1090/frames"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "beam1090-" + randomHex(4)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		cfg.Logger.Info("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		cfg.Logger.Warn("mqtt connection lost", "err", err)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &MQTTSink{client: client, topic: cfg.Topic, logger: cfg.Logger}, nil
}

func (m *MQTTSink) Publish(f *modes.Frame) error {
	b, err := json.Marshal(newFrameRecord(f))
	if err != nil {
		return err
	}
	m.client.Publish(fmt.Sprintf("%s/df%d", m.topic, f.DF), 0, false, b)
	return nil
}

func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}

func newFrameRecord(f *modes.Frame) frameRecord {
	rec := frameRecord{
		Time:     f.Timestamp,
		DF:       f.DF,
		Hex:      f.Hex(),
		Score:    f.Score,
		Repaired: f.Repaired,
	}
	if f.ICAO != 0 {
		rec.ICAO = fmt.Sprintf("%06X", f.ICAO)
	}
	return rec
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "0000"
	}
	return hex.EncodeToString(b)
}
