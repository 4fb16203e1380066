package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/bottle"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDialFailed = errors.New("dial failed")

type fakeSession struct {
	events chan domain.WebcastEvent
	closed atomic.Bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan domain.WebcastEvent, 16)}
}

func (s *fakeSession) Events() <-chan domain.WebcastEvent { return s.events }

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSession) gift(diamonds int) {
	s.events <- domain.WebcastEvent{Kind: domain.WebcastGift, Gift: map[string]any{"uniqueId": "fan", "giftName": "Rose", "diamondCount": diamonds}}
}

type fakeSource struct {
	mu     sync.Mutex
	opens  []domain.BroadcasterConfig
	openFn func(ctx context.Context, call int) (domain.WebcastSession, error)
}

func (f *fakeSource) Open(ctx context.Context, cfg domain.BroadcasterConfig) (domain.WebcastSession, error) {
	f.mu.Lock()
	f.opens = append(f.opens, cfg)
	call := len(f.opens)
	f.mu.Unlock()
	return f.openFn(ctx, call)
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeSource) config(i int) domain.BroadcasterConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[i]
}

func sessionSource(sessions ...*fakeSession) *fakeSource {
	return &fakeSource{openFn: func(_ context.Context, call int) (domain.WebcastSession, error) {
		return sessions[min(call, len(sessions))-1], nil
	}}
}

func failingSource() *fakeSource {
	return &fakeSource{openFn: func(context.Context, int) (domain.WebcastSession, error) {
		return nil, errDialFailed
	}}
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []any
}

func (p *recordingPublisher) Publish(_ string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, msg := range p.msgs {
		out = append(out, messageType(msg))
	}
	return out
}

func (p *recordingPublisher) last() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		return nil
	}
	return p.msgs[len(p.msgs)-1]
}

func messageType(msg any) string {
	switch v := msg.(type) {
	case domain.StatusMessage:
		return v.Type
	case domain.GiftMessage:
		return v.Type
	case domain.BottleMessage:
		return v.Type
	case domain.BottleUsedMessage:
		return v.Type
	default:
		return ""
	}
}

type harness struct {
	manager *Manager
	store   *bottle.Store
	pub     *recordingPublisher
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T, source domain.WebcastSource, policy RetryPolicy) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := bottle.NewStore(10, clock)
	pub := &recordingPublisher{}
	m := NewManager("streamer-1", store, Deps{
		Source:    source,
		Publisher: pub,
		Clock:     clock,
		Policy:    policy,
		Metrics:   metrics.NewLiveMetrics(prometheus.NewRegistry()),
	})
	t.Cleanup(m.Close)
	return &harness{manager: m, store: store, pub: pub, clock: clock}
}

func (h *harness) waitForState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.manager.State() == want }, 2*time.Second, 5*time.Millisecond,
		"expected state %s, got %s", want, h.manager.State())
}

func (h *harness) waitForRetryTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
}

func testConfig() domain.BroadcasterConfig {
	return domain.BroadcasterConfig{UniqueID: "creator", Capacity: 10}
}

func TestStart_ConnectsAndPublishesStatus(t *testing.T) {
	h := newHarness(t, sessionSource(newFakeSession()), nil)

	res, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, StartConnecting, res)

	h.waitForState(t, StateConnected)
	assert.True(t, h.store.Snapshot().Connected)
	require.Eventually(t, func() bool { return len(h.pub.types()) == 1 }, time.Second, 5*time.Millisecond)
	status := h.pub.last().(domain.StatusMessage)
	assert.True(t, status.Connected)
	assert.Equal(t, "creator", status.UniqueID)
	assert.Empty(t, status.Error)
}

func TestStart_InvalidConfig(t *testing.T) {
	source := sessionSource(newFakeSession())
	h := newHarness(t, source, nil)

	_, err := h.manager.Start(context.Background(), domain.BroadcasterConfig{UniqueID: ""})

	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Equal(t, StateIdle, h.manager.State())
	assert.Zero(t, source.openCount())
}

func TestStart_TwiceOpensOneSession(t *testing.T) {
	release := make(chan struct{})
	session := newFakeSession()
	source := &fakeSource{openFn: func(context.Context, int) (domain.WebcastSession, error) {
		<-release
		return session, nil
	}}
	h := newHarness(t, source, nil)

	first, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	second, err := h.manager.Start(context.Background(), domain.BroadcasterConfig{UniqueID: "other"})
	require.NoError(t, err)
	close(release)

	assert.Equal(t, StartConnecting, first)
	assert.Equal(t, StartAlreadyRunning, second)
	h.waitForState(t, StateConnected)

	third, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, StartAlreadyRunning, third)
	assert.Equal(t, 1, source.openCount())
	assert.Equal(t, "creator", source.config(0).UniqueID)
}

func TestOpenFailure_RetriesAfterFixedDelay(t *testing.T) {
	session := newFakeSession()
	source := &fakeSource{openFn: func(_ context.Context, call int) (domain.WebcastSession, error) {
		if call == 1 {
			return nil, errDialFailed
		}
		return session, nil
	}}
	h := newHarness(t, source, nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateRetryPending)
	h.waitForRetryTimer(t)

	status := h.pub.last().(domain.StatusMessage)
	assert.False(t, status.Connected)
	assert.Equal(t, errDialFailed.Error(), status.Error)

	h.clock.Advance(4 * time.Second)
	assert.Never(t, func() bool { return source.openCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	h.clock.Advance(time.Second)
	h.waitForState(t, StateConnected)
	assert.Equal(t, 2, source.openCount())
}

func TestStop_CancelsPendingRetry(t *testing.T) {
	source := failingSource()
	h := newHarness(t, source, nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateRetryPending)
	h.waitForRetryTimer(t)

	require.NoError(t, h.manager.Stop(context.Background()))
	assert.Equal(t, StateIdle, h.manager.State())

	h.clock.Advance(time.Minute)
	assert.Never(t, func() bool { return source.openCount() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StateIdle, h.manager.State())
}

func TestStop_WhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, sessionSource(newFakeSession()), nil)

	require.NoError(t, h.manager.Stop(context.Background()))

	assert.Equal(t, StateIdle, h.manager.State())
	assert.Empty(t, h.pub.types())
}

func TestStop_ClosesSessionAndPublishesStatus(t *testing.T) {
	session := newFakeSession()
	h := newHarness(t, sessionSource(session), nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)

	require.NoError(t, h.manager.Stop(context.Background()))

	assert.True(t, session.closed.Load())
	assert.False(t, h.store.Snapshot().Connected)
	status := h.pub.last().(domain.StatusMessage)
	assert.False(t, status.Connected)
	assert.Empty(t, status.Error)
}

func TestStop_DiscardsSessionOpenedAfterStop(t *testing.T) {
	release := make(chan struct{})
	session := newFakeSession()
	source := &fakeSource{openFn: func(context.Context, int) (domain.WebcastSession, error) {
		<-release
		return session, nil
	}}
	h := newHarness(t, source, nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, h.manager.Stop(context.Background()))
	close(release)

	require.Eventually(t, session.closed.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateIdle, h.manager.State())
	assert.False(t, h.store.Snapshot().Connected)
}

func TestStart_AfterStopUsesNewConfig(t *testing.T) {
	source := sessionSource(newFakeSession(), newFakeSession())
	h := newHarness(t, source, nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)
	require.NoError(t, h.manager.Stop(context.Background()))

	res, err := h.manager.Start(context.Background(), domain.BroadcasterConfig{UniqueID: "renamed", Capacity: 50})
	require.NoError(t, err)
	assert.Equal(t, StartConnecting, res)
	h.waitForState(t, StateConnected)

	assert.Equal(t, "renamed", source.config(1).UniqueID)
	assert.Equal(t, 50, h.store.Snapshot().Capacity)
}

func TestSessionDrop_RetriesAfterDisconnectDelay(t *testing.T) {
	first, second := newFakeSession(), newFakeSession()
	source := sessionSource(first, second)
	h := newHarness(t, source, nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)

	first.events <- domain.WebcastEvent{Kind: domain.WebcastDisconnected, Err: errors.New("stream ended")}
	h.waitForState(t, StateRetryPending)
	h.waitForRetryTimer(t)

	assert.True(t, first.closed.Load())
	assert.False(t, h.store.Snapshot().Connected)
	assert.Equal(t, "stream ended", h.pub.last().(domain.StatusMessage).Error)

	h.clock.Advance(3 * time.Second)
	h.waitForState(t, StateConnected)
	assert.Equal(t, 2, source.openCount())
	assert.True(t, h.store.Snapshot().Connected)
}

func TestSessionDrop_ClosedEventStream(t *testing.T) {
	session := newFakeSession()
	h := newHarness(t, sessionSource(session), nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)

	close(session.events)

	h.waitForState(t, StateRetryPending)
}

func TestGifts_AppliedInOrderWithSingleFullEvent(t *testing.T) {
	session := newFakeSession()
	h := newHarness(t, sessionSource(session), nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)

	for _, diamonds := range []int{4, 4, 4, 1} {
		session.gift(diamonds)
	}

	want := []string{
		domain.MessageStatus,
		domain.MessageGift,
		domain.MessageGift,
		domain.MessageGift,
		domain.MessageBottleFull,
		domain.MessageGift,
	}
	require.Eventually(t, func() bool { return len(h.pub.types()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, h.pub.types())

	state := h.store.Snapshot()
	assert.Equal(t, 10, state.Current)
	require.NotNil(t, state.LastGift)
	assert.Equal(t, "fan", state.LastGift.Sender)
	assert.Equal(t, 1, state.LastGift.Points)
}

func TestUseAndReset_PublishesUsedThenReset(t *testing.T) {
	session := newFakeSession()
	h := newHarness(t, sessionSource(session), nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)
	session.gift(3)
	require.Eventually(t, func() bool { return h.store.Snapshot().Current == 3 }, time.Second, 5*time.Millisecond)

	used, state, err := h.manager.UseAndReset(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, used)
	assert.Zero(t, state.Current)
	types := h.pub.types()
	assert.Equal(t, []string{domain.MessageBottleUsed, domain.MessageBottleReset}, types[len(types)-2:])
}

func TestUseAndReset_WorksWhileIdle(t *testing.T) {
	h := newHarness(t, sessionSource(newFakeSession()), nil)

	used, _, err := h.manager.UseAndReset(context.Background())

	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, []string{domain.MessageBottleUsed, domain.MessageBottleReset}, h.pub.types())
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	source := failingSource()
	h := newHarness(t, source, FixedDelay{OpenFailure: time.Second, Disconnect: time.Second, MaxAttempts: 1})

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateRetryPending)
	h.waitForRetryTimer(t)

	h.clock.Advance(time.Second)

	h.waitForState(t, StateIdle)
	assert.Equal(t, 2, source.openCount())
	require.Eventually(t, func() bool {
		status, ok := h.pub.last().(domain.StatusMessage)
		return ok && status.Error == "gave up after 1 reconnect attempts"
	}, time.Second, 5*time.Millisecond)
}

func TestClose_StopsSessionAndRejectsCommands(t *testing.T) {
	session := newFakeSession()
	h := newHarness(t, sessionSource(session), nil)

	_, err := h.manager.Start(context.Background(), testConfig())
	require.NoError(t, err)
	h.waitForState(t, StateConnected)

	h.manager.Close()
	h.manager.Close()

	assert.True(t, session.closed.Load())
	_, err = h.manager.Start(context.Background(), testConfig())
	assert.ErrorIs(t, err, ErrManagerClosed)
}
