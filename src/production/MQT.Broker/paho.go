package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
)

// PahoDialer opens paho.mqtt.golang sessions using the gateway's backend credentials
type PahoDialer struct {
	cfg    config.MQTTConfig
	logger *logger.Logger
}

func NewPahoDialer(cfg config.MQTTConfig, log *logger.Logger) *PahoDialer {
	return &PahoDialer{cfg: cfg, logger: log.WithComponent("mqtt-client")}
}

func (d *PahoDialer) Dial(ctx context.Context, url string, deliver func(Message)) (Connection, error) {
	log := d.logger.WithBroker(url)

	// Auto reconnect stays off: the manager redials dropped sessions on its next tick
	opts := mqtt.NewClientOptions().
		AddBroker(d.dialAddress(url)).
		SetClientID(fmt.Sprintf("%s-%s", d.cfg.ClientID, uuid.NewString()[:8])).
		SetOrderMatters(false).
		SetKeepAlive(d.cfg.KeepAlive).
		SetPingTimeout(d.cfg.PingTimeout).
		SetConnectTimeout(d.cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true)

	if d.cfg.Username != "" {
		opts.SetUsername(d.cfg.Username)
		opts.SetPassword(d.cfg.Password)
	}

	if d.cfg.UseTLS {
		tlsCfg, err := tlsConfig(d.cfg.CACertPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Logger.Error().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, err
	}
	log.Debug("MQTT connected")

	return &pahoConnection{
		url:       url,
		client:    client,
		deliver:   deliver,
		opTimeout: d.cfg.OperationTimeout,
	}, nil
}

func (d *PahoDialer) dialAddress(url string) string {
	if d.cfg.UseTLS && strings.HasPrefix(url, "tcp://") {
		return "ssl://" + strings.TrimPrefix(url, "tcp://")
	}
	return url
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}

// waitToken blocks until the token completes or ctx ends
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

type pahoConnection struct {
	url       string
	client    mqtt.Client
	deliver   func(Message)
	opTimeout time.Duration
}

func (c *pahoConnection) URL() string { return c.url }

func (c *pahoConnection) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *pahoConnection) Subscribe(ctx context.Context, topic string, qos byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		c.deliver(Message{
			BrokerURL:  c.url,
			Topic:      m.Topic(),
			Payload:    m.Payload(),
			ReceivedAt: time.Now().UTC(),
		})
	})
	return waitToken(ctx, token)
}

func (c *pahoConnection) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return waitToken(ctx, c.client.Publish(topic, qos, retained, payload))
}

func (c *pahoConnection) Disconnect() {
	c.client.Disconnect(250)
}

func (c *pahoConnection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
