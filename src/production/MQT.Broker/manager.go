package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	topics "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Topics"
	"golang.org/x/sync/errgroup"
)

// ConnectionStatus is a snapshot of one entry in the connection table
type ConnectionStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}

// Manager reconciles the connection table against the active brokers in the store.
// Only the reconcile tick mutates the table; lookups take a read lock and never
// wait on a tick in progress.
type Manager struct {
	brokers interfaces.BrokerRepository
	dialer  Dialer
	handler Handler
	logger  *logger.Logger

	interval         time.Duration
	maxParallel      int
	handshakeTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]Connection

	tick sync.Mutex

	lifetime context.Context
	cancel   context.CancelFunc
}

func NewManager(brokers interfaces.BrokerRepository, dialer Dialer, handler Handler,
	sched config.SchedulerConfig, handshakeTimeout time.Duration, log *logger.Logger) *Manager {
	if sched.MaxParallelDialing < 1 {
		sched.MaxParallelDialing = 1
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Manager{
		brokers:          brokers,
		dialer:           dialer,
		handler:          handler,
		logger:           log.WithComponent("broker-manager"),
		interval:         sched.ReconcileInterval,
		maxParallel:      sched.MaxParallelDialing,
		handshakeTimeout: handshakeTimeout,
		conns:            make(map[string]Connection),
		lifetime:         lifetime,
		cancel:           cancel,
	}
}

// Run reconciles immediately and then on every interval until ctx is done
func (m *Manager) Run(ctx context.Context) {
	m.logger.Logger.Info().Dur("interval", m.interval).Msg("Broker reconciliation loop started")

	_ = m.Reconcile(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Broker reconciliation loop stopped")
			return
		case <-ticker.C:
			_ = m.Reconcile(ctx)
		}
	}
}

// Reconcile brings the connection table in line with the active broker set.
// A call made while another reconcile is running returns immediately.
func (m *Manager) Reconcile(ctx context.Context) error {
	if !m.tick.TryLock() {
		m.logger.Debug("Reconcile already in progress, skipping tick")
		return nil
	}
	defer m.tick.Unlock()

	if m.lifetime.Err() != nil {
		return nil
	}

	// Close aborts handshakes still in flight
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.lifetime, cancel)
	defer stop()

	active, err := m.brokers.FindActive(ctx)
	if err != nil {
		m.logger.Logger.Error().Err(err).Msg("Failed to load active brokers, keeping current connections")
		return fmt.Errorf("load active brokers: %w", err)
	}

	desired := make(map[string]struct{}, len(active))
	for _, b := range active {
		desired[b.URL()] = struct{}{}
	}

	// Entries leave the table before they are torn down so a reader never
	// gets a handle that is being disconnected.
	var stale []Connection
	m.mu.Lock()
	had := len(m.conns)
	for url, conn := range m.conns {
		_, wanted := desired[url]
		if wanted && conn.IsConnected() {
			continue
		}
		if wanted {
			m.logger.WithBroker(url).Warn("Connection lost, will redial")
		}
		delete(m.conns, url)
		stale = append(stale, conn)
	}
	m.mu.Unlock()

	if len(desired) == 0 && had > 0 {
		m.logger.Logger.Warn().Int("connections", had).Msg("No active brokers, closing all connections")
	}
	for _, conn := range stale {
		m.logger.WithBroker(conn.URL()).Info("Disconnecting broker")
		conn.Disconnect()
	}

	missing := m.missing(desired)
	if len(missing) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(m.maxParallel)
	for _, url := range missing {
		url := url
		g.Go(func() error {
			conn, err := m.connect(ctx, url)
			if err != nil {
				m.logger.WithBroker(url).ErrorWithError(err, "Broker connection failed, retrying next tick")
				return nil
			}
			m.register(url, conn)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (m *Manager) missing(desired map[string]struct{}) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0)
	for url := range desired {
		if _, ok := m.conns[url]; !ok {
			out = append(out, url)
		}
	}
	sort.Strings(out)
	return out
}

// connect dials url and subscribes to the telemetry and control wildcards
func (m *Manager) connect(ctx context.Context, url string) (Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(ctx, url, func(msg Message) {
		msg.BrokerURL = url
		m.handler(m.lifetime, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	for _, topic := range []string{topics.WildcardTelemetry(), topics.WildcardControl()} {
		if err := conn.Subscribe(ctx, topic, 1); err != nil {
			conn.Disconnect()
			return nil, fmt.Errorf("subscribe %s on %s: %w", topic, url, err)
		}
	}
	return conn, nil
}

func (m *Manager) register(url string, conn Connection) {
	m.mu.Lock()
	if m.lifetime.Err() != nil {
		m.mu.Unlock()
		conn.Disconnect()
		return
	}
	m.conns[url] = conn
	m.mu.Unlock()

	m.logger.Logger.Info().Str("broker_url", url).
		Strs("topics", []string{topics.WildcardTelemetry(), topics.WildcardControl()}).
		Msg("Broker connected and subscribed")
}

func (m *Manager) Get(url string) (Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[url]
	if !ok || !conn.IsConnected() {
		return nil, false
	}
	return conn, true
}

// GetAny picks the first connected entry in URL order
func (m *Manager) GetAny() (Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	urls := make([]string, 0, len(m.conns))
	for url := range m.conns {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	for _, url := range urls {
		if conn := m.conns[url]; conn.IsConnected() {
			return conn, true
		}
	}
	return nil, false
}

func (m *Manager) Status() []ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnectionStatus, 0, len(m.conns))
	for url, conn := range m.conns {
		out = append(out, ConnectionStatus{URL: url, Connected: conn.IsConnected()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Close waits for a running reconcile, then disconnects everything
func (m *Manager) Close() {
	m.cancel()

	m.tick.Lock()
	defer m.tick.Unlock()

	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
	m.logger.Logger.Info().Int("closed", len(conns)).Msg("Broker manager closed")
}
