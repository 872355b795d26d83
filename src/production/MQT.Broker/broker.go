// Package broker owns the gateway's MQTT connections, one per active broker.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("broker connection is not connected")
	ErrTimeout      = errors.New("broker operation timed out")
)

// Message is one inbound publish, tagged with the broker it arrived on
type Message struct {
	BrokerURL  string
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Handler consumes inbound messages. It runs on the client's delivery goroutine.
type Handler func(ctx context.Context, msg Message)

// Connection is a live client session with one broker
type Connection interface {
	URL() string
	IsConnected() bool
	Subscribe(ctx context.Context, topic string, qos byte) error
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// Dialer opens a connection and routes every message it receives to deliver
type Dialer interface {
	Dial(ctx context.Context, url string, deliver func(Message)) (Connection, error)
}

// Provider is the read side of the connection table used by publishers
type Provider interface {
	// Get returns the connection for url if it exists and is connected
	Get(url string) (Connection, bool)
	// GetAny returns some connected connection, or false if none is
	GetAny() (Connection, bool)
}
