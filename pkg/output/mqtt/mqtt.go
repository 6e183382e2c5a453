package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/itohio/daqnode/pkg/output"
)

const (
	DefaultServer       = "tcp://localhost:1883"
	DefaultTopic        = "daqnode/channel/%d"
	clientIDPrefix      = "daqhost-"
	disconnectQuiesceMs = 250
)

// Config configures the MQTT output.
type Config struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"` // empty generates a unique id
	Topic    string `yaml:"topic"`     // %d is replaced by the channel number
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// DefaultConfig returns a local broker configuration.
func DefaultConfig() Config {
	return Config{
		Server: DefaultServer,
		Topic:  DefaultTopic,
	}
}

// client is the part of mqtt.Client the output uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client   client
	topic    string
	qos      byte
	retained bool
}

// ClientID returns id, or a fresh unique id when id is empty.
func ClientID(id string) string {
	if id != "" {
		return id
	}
	return clientIDPrefix + uuid.NewString()
}

// NewMQTT connects to the broker.
func NewMQTT(cfg Config) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(ClientID(cfg.ClientID))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newOutput(c, cfg), nil
}

func newOutput(c client, cfg Config) *MQTTOutput {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTOutput{client: c, topic: topic, qos: cfg.QoS, retained: cfg.Retained}
}

// Publish sends one JSON message per channel.
func (m *MQTTOutput) Publish(r output.Record) error {
	for _, ch := range r.Channels {
		payload := map[string]interface{}{
			"timestamp":  r.Timestamp.UnixMilli(),
			"raw":        ch.Raw,
			"millivolts": ch.Millivolts,
			"mean_mv":    ch.Mean(),
			"scores":     ch.Scores,
			"class":      ch.Class,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		token := m.client.Publish(m.channelTopic(ch.Channel), m.qos, m.retained, b)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

func (m *MQTTOutput) channelTopic(ch int) string {
	if strings.Contains(m.topic, "%d") {
		return fmt.Sprintf(m.topic, ch)
	}
	return fmt.Sprintf("%s/%d", strings.TrimSuffix(m.topic, "/"), ch)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}
