package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTTransport 基于 MQTT 的推送通道
// 订阅 <TopicPrefix>/#，主题最后一段是事件名，payload 是事件内容；access token 作为密码
type MQTTTransport struct {
	ClientID       string // 前缀，连接时追加随机后缀
	Username       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// Dial url 为 broker 地址，如 "tcp://localhost:1883"
func (t *MQTTTransport) Dial(ctx context.Context, broker, token string) (Conn, error) {
	c := &mqttConn{
		frames: make(chan Frame, 256),
		done:   make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(t.clientID())
	if t.Username != "" {
		opts.SetUsername(t.Username)
	}
	if token != "" {
		opts.SetPassword(token)
	}
	// 重连由 push.Client 负责
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(t.connectTimeout())
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.fail(fmt.Errorf("mqtt connection lost: %w", err))
	})

	c.client = mqtt.NewClient(opts)
	if err := wait(ctx, c.client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	topic := strings.TrimRight(t.TopicPrefix, "/") + "/#"
	if err := wait(ctx, c.client.Subscribe(topic, t.QoS, c.onMessage)); err != nil {
		c.client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return c, nil
}

func (t *MQTTTransport) clientID() string {
	prefix := t.ClientID
	if prefix == "" {
		prefix = "unit-tracker"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

func (t *MQTTTransport) connectTimeout() time.Duration {
	if t.ConnectTimeout > 0 {
		return t.ConnectTimeout
	}
	return 10 * time.Second
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttConn struct {
	client mqtt.Client
	frames chan Frame
	done   chan struct{}

	once sync.Once
	err  error
}

func (c *mqttConn) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	kind := topic[strings.LastIndex(topic, "/")+1:]
	frame := Frame{Type: kind, Data: append([]byte(nil), msg.Payload()...)}
	select {
	case c.frames <- frame:
	case <-c.done:
	}
}

func (c *mqttConn) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case frame := <-c.frames:
		if frame.Type == "" {
			return Frame{}, ErrMalformedFrame
		}
		return frame, nil
	case <-c.done:
		return Frame{}, c.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *mqttConn) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *mqttConn) Close() error {
	c.fail(errors.New("mqtt connection closed"))
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	return nil
}
