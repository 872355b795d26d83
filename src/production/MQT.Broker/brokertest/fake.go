// Package brokertest provides in-memory broker connections for tests
package brokertest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
)

// Published records one call to Publish
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Connection is a fake broker.Connection
type Connection struct {
	url     string
	deliver func(broker.Message)

	mu            sync.Mutex
	connected     bool
	disconnects   int
	subscriptions []string
	published     []Published

	PublishErr   error
	SubscribeErr error
}

func NewConnection(url string) *Connection {
	return &Connection{url: url, connected: true, deliver: func(broker.Message) {}}
}

func (c *Connection) URL() string { return c.url }

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connection) Subscribe(ctx context.Context, topic string, qos byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.subscriptions = append(c.subscriptions, topic)
	return nil
}

func (c *Connection) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return broker.ErrNotConnected
	}
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

// Drop simulates a lost session without a Disconnect call
func (c *Connection) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// Deliver pushes an inbound message through the handler given at dial time
func (c *Connection) Deliver(topic string, payload []byte) {
	c.deliver(broker.Message{BrokerURL: c.url, Topic: topic, Payload: payload, ReceivedAt: time.Now().UTC()})
}

func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscriptions...)
}

func (c *Connection) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

var ErrRefused = errors.New("connection refused")

// Dialer is a fake broker.Dialer that records every dial
type Dialer struct {
	mu    sync.Mutex
	dials map[string]int
	conns map[string]*Connection
	fail  map[string]error
	block map[string]chan struct{}
}

func NewDialer() *Dialer {
	return &Dialer{
		dials: make(map[string]int),
		conns: make(map[string]*Connection),
		fail:  make(map[string]error),
		block: make(map[string]chan struct{}),
	}
}

// Fail makes every dial to url return err until cleared with a nil err
func (d *Dialer) Fail(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, url)
		return
	}
	d.fail[url] = err
}

// Hang makes dials to url block until the dial context ends
func (d *Dialer) Hang(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block[url] = make(chan struct{})
}

func (d *Dialer) Dial(ctx context.Context, url string, deliver func(broker.Message)) (broker.Connection, error) {
	d.mu.Lock()
	d.dials[url]++
	err := d.fail[url]
	block := d.block[url]
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	conn := NewConnection(url)
	conn.deliver = deliver

	d.mu.Lock()
	d.conns[url] = conn
	d.mu.Unlock()
	return conn, nil
}

func (d *Dialer) Dials(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[url]
}

func (d *Dialer) TotalDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.dials {
		n += c
	}
	return n
}

// Conn returns the most recent connection dialed to url
func (d *Dialer) Conn(url string) *Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[url]
}

// Provider is a fixed connection table implementing broker.Provider
type Provider struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

func NewProvider(conns ...*Connection) *Provider {
	p := &Provider{conns: make(map[string]*Connection)}
	for _, c := range conns {
		p.conns[c.URL()] = c
	}
	return p
}

func (p *Provider) Get(url string) (broker.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[url]
	if !ok || !c.IsConnected() {
		return nil, false
	}
	return c, true
}

func (p *Provider) GetAny() (broker.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, 0, len(p.conns))
	for url := range p.conns {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	for _, url := range urls {
		if c := p.conns[url]; c.IsConnected() {
			return c, true
		}
	}
	return nil, false
}
