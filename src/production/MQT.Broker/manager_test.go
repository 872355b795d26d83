package broker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker/brokertest"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	memory "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Memory"
)

const (
	urlA = "tcp://a.local:1883"
	urlB = "tcp://b.local:1883"
)

type fixture struct {
	brokers *memory.BrokerRepository
	dialer  *brokertest.Dialer
	manager *broker.Manager

	mu       sync.Mutex
	received []broker.Message
}

func newFixture(t *testing.T, handshake time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		brokers: memory.NewStore().Brokers(),
		dialer:  brokertest.NewDialer(),
	}
	handler := func(ctx context.Context, msg broker.Message) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.received = append(f.received, msg)
	}
	sched := config.SchedulerConfig{ReconcileInterval: time.Hour, MaxParallelDialing: 4}
	f.manager = broker.NewManager(f.brokers, f.dialer, handler, sched, handshake, logger.NewNop())
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) addBroker(t *testing.T, host string, active bool) *mqtmodels.Broker {
	t.Helper()
	b := &mqtmodels.Broker{Name: host, Host: host, Port: 1883, Active: active}
	require.NoError(t, f.brokers.Save(context.Background(), b))
	return b
}

func (f *fixture) setActive(t *testing.T, b *mqtmodels.Broker, active bool) {
	t.Helper()
	b.Active = active
	require.NoError(t, f.brokers.Save(context.Background(), b))
}

func urls(statuses []broker.ConnectionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, s.URL)
	}
	return out
}

func TestReconcile_ConnectsActiveBrokersAndSubscribes(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	f.addBroker(t, "off.local", false)

	require.NoError(t, f.manager.Reconcile(context.Background()))

	assert.Equal(t, []string{urlA, urlB}, urls(f.manager.Status()))
	assert.ElementsMatch(t, []string{"planta/#", "control/provisioning/#"}, f.dialer.Conn(urlA).Subscriptions())
	assert.Zero(t, f.dialer.Dials("tcp://off.local:1883"))
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	ctx := context.Background()

	require.NoError(t, f.manager.Reconcile(ctx))
	require.NoError(t, f.manager.Reconcile(ctx))

	assert.Equal(t, 2, f.dialer.TotalDials())
	assert.Zero(t, f.dialer.Conn(urlA).Disconnects())
	assert.Zero(t, f.dialer.Conn(urlB).Disconnects())
}

func TestReconcile_RemovesDeactivatedBroker(t *testing.T) {
	f := newFixture(t, time.Second)
	a := f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	ctx := context.Background()
	require.NoError(t, f.manager.Reconcile(ctx))

	f.setActive(t, a, false)
	require.NoError(t, f.manager.Reconcile(ctx))

	_, ok := f.manager.Get(urlA)
	assert.False(t, ok)
	assert.Equal(t, 1, f.dialer.Conn(urlA).Disconnects())
	assert.Equal(t, []string{urlB}, urls(f.manager.Status()))
}

func TestReconcile_EmptySetTearsDownEverything(t *testing.T) {
	f := newFixture(t, time.Second)
	a := f.addBroker(t, "a.local", true)
	b := f.addBroker(t, "b.local", true)
	ctx := context.Background()
	require.NoError(t, f.manager.Reconcile(ctx))

	f.setActive(t, a, false)
	f.setActive(t, b, false)
	require.NoError(t, f.manager.Reconcile(ctx))

	assert.Empty(t, f.manager.Status())
	_, ok := f.manager.GetAny()
	assert.False(t, ok)
}

func TestReconcile_FailureIsolatedAndRetried(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	f.dialer.Fail(urlA, brokertest.ErrRefused)
	ctx := context.Background()

	require.NoError(t, f.manager.Reconcile(ctx))
	assert.Equal(t, []string{urlB}, urls(f.manager.Status()))

	f.dialer.Fail(urlA, nil)
	require.NoError(t, f.manager.Reconcile(ctx))
	assert.Equal(t, []string{urlA, urlB}, urls(f.manager.Status()))
	assert.Equal(t, 2, f.dialer.Dials(urlA))
	assert.Equal(t, 1, f.dialer.Dials(urlB))
}

func TestReconcile_HungHandshakeDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	f.dialer.Hang(urlA)

	start := time.Now()
	require.NoError(t, f.manager.Reconcile(context.Background()))

	assert.Less(t, time.Since(start), 2*time.Second)
	_, ok := f.manager.Get(urlB)
	assert.True(t, ok)
	_, ok = f.manager.Get(urlA)
	assert.False(t, ok)
}

func TestReconcile_SubscribeFailureDiscardsConnection(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)

	failing := &subscribeFailDialer{Dialer: f.dialer}
	sched := config.SchedulerConfig{ReconcileInterval: time.Hour, MaxParallelDialing: 1}
	m := broker.NewManager(f.brokers, failing, func(context.Context, broker.Message) {}, sched, time.Second, logger.NewNop())
	defer m.Close()

	require.NoError(t, m.Reconcile(context.Background()))
	assert.Empty(t, m.Status())
	assert.Equal(t, 1, f.dialer.Conn(urlA).Disconnects())
}

type subscribeFailDialer struct {
	*brokertest.Dialer
}

func (d *subscribeFailDialer) Dial(ctx context.Context, url string, deliver func(broker.Message)) (broker.Connection, error) {
	conn, err := d.Dialer.Dial(ctx, url, deliver)
	if err != nil {
		return nil, err
	}
	conn.(*brokertest.Connection).SubscribeErr = assert.AnError
	return conn, nil
}

func TestReconcile_RedialsDroppedConnection(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)
	ctx := context.Background()
	require.NoError(t, f.manager.Reconcile(ctx))

	first := f.dialer.Conn(urlA)
	first.Drop()
	_, ok := f.manager.Get(urlA)
	assert.False(t, ok, "a dropped connection is not live")

	require.NoError(t, f.manager.Reconcile(ctx))
	assert.Equal(t, 2, f.dialer.Dials(urlA))
	conn, ok := f.manager.Get(urlA)
	require.True(t, ok)
	assert.NotSame(t, first, conn)
}

func TestReconcile_OverlappingTickSkipped(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addBroker(t, "a.local", true)
	f.dialer.Hang(urlA)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.manager.Reconcile(context.Background())
	}()
	require.Eventually(t, func() bool { return f.dialer.Dials(urlA) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Reconcile(context.Background()))
	assert.Equal(t, 1, f.dialer.Dials(urlA))

	// Close cancels the hung handshake
	f.manager.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile did not return after Close")
	}
}

func TestGetAny_FirstConnectedInURLOrder(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	require.NoError(t, f.manager.Reconcile(context.Background()))

	conn, ok := f.manager.GetAny()
	require.True(t, ok)
	assert.Equal(t, urlA, conn.URL())

	f.dialer.Conn(urlA).Drop()
	conn, ok = f.manager.GetAny()
	require.True(t, ok)
	assert.Equal(t, urlB, conn.URL())
}

func TestInboundMessagesCarryBrokerURL(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "b.local", true)
	require.NoError(t, f.manager.Reconcile(context.Background()))

	f.dialer.Conn(urlB).Deliver("planta/PNT-1/lecturas", []byte(`{}`))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.received, 1)
	assert.Equal(t, urlB, f.received[0].BrokerURL)
	assert.Equal(t, "planta/PNT-1/lecturas", f.received[0].Topic)
}

func TestClose_DisconnectsAll(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addBroker(t, "a.local", true)
	f.addBroker(t, "b.local", true)
	require.NoError(t, f.manager.Reconcile(context.Background()))

	f.manager.Close()

	assert.Empty(t, f.manager.Status())
	assert.Equal(t, 1, f.dialer.Conn(urlA).Disconnects())
	assert.Equal(t, 1, f.dialer.Conn(urlB).Disconnects())

	// no redial after close
	require.NoError(t, f.manager.Reconcile(context.Background()))
	assert.Equal(t, 2, f.dialer.TotalDials())
}
