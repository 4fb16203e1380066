package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/bottle"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/gift"
	"github.com/jonboulle/clockwork"
)

const (
	defaultOpenTimeout = 20 * time.Second
	commandBufferSize  = 64
)

var ErrManagerClosed = errors.New("live manager closed")

type StartResult int

const (
	StartConnecting StartResult = iota
	StartAlreadyRunning
)

func (r StartResult) String() string {
	if r == StartAlreadyRunning {
		return "already_running"
	}
	return "connecting"
}

// Publisher delivers overlay messages to a broadcaster's subscribers.
type Publisher interface {
	Publish(broadcasterID string, msg any) error
}

// Deps are shared by every Manager of a process.
type Deps struct {
	Source      domain.WebcastSource
	Publisher   Publisher
	Clock       clockwork.Clock
	Policy      RetryPolicy
	Metrics     *metrics.LiveMetrics
	OpenTimeout time.Duration
}

type managerCmd interface{ isManagerCmd() }

type baseManagerCmd struct{}

func (baseManagerCmd) isManagerCmd() {}

type startCmd struct {
	baseManagerCmd
	config       domain.BroadcasterConfig
	replyChannel chan StartResult
}

type stopCmd struct {
	baseManagerCmd
	replyChannel chan struct{}
}

type useCmd struct {
	baseManagerCmd
	replyChannel chan useResult
}

type openResultCmd struct {
	baseManagerCmd
	generation uint64
	session    domain.WebcastSession
	err        error
}

type closeCmd struct {
	baseManagerCmd
}

type useResult struct {
	used  int
	state domain.BottleState
}

// Manager owns the live connection of one broadcaster. All session events,
// commands and retry firings are handled sequentially on one goroutine, so
// gifts are applied to the store in arrival order.
type Manager struct {
	broadcasterID string
	store         *bottle.Store
	deps          Deps

	cmdCh     chan managerCmd
	done      chan struct{}
	closeOnce sync.Once
	observed  atomic.Int32

	// Owned by run.
	machine    Machine
	config     domain.BroadcasterConfig
	session    domain.WebcastSession
	events     <-chan domain.WebcastEvent
	retryTimer clockwork.Timer
	retryCh    <-chan time.Time
	attempts   int
	generation uint64
	cancelOpen context.CancelFunc
	lastErr    string
	connected  bool
}

func NewManager(broadcasterID string, store *bottle.Store, deps Deps) *Manager {
	if deps.Policy == nil {
		deps.Policy = DefaultRetryPolicy()
	}
	if deps.OpenTimeout <= 0 {
		deps.OpenTimeout = defaultOpenTimeout
	}

	m := &Manager{
		broadcasterID: broadcasterID,
		store:         store,
		deps:          deps,
		cmdCh:         make(chan managerCmd, commandBufferSize),
		done:          make(chan struct{}),
	}
	go m.run()
	return m
}

// Start begins connecting with cfg. A Start while already running is a no-op
// reported as StartAlreadyRunning; the running config is kept.
func (m *Manager) Start(ctx context.Context, cfg domain.BroadcasterConfig) (StartResult, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	replyCh := make(chan StartResult, 1)
	if err := m.send(ctx, startCmd{config: cfg, replyChannel: replyCh}); err != nil {
		return 0, err
	}
	return awaitReply(ctx, m.done, replyCh)
}

// Stop returns once the session is closed and any pending retry is cancelled.
func (m *Manager) Stop(ctx context.Context) error {
	replyCh := make(chan struct{}, 1)
	if err := m.send(ctx, stopCmd{replyChannel: replyCh}); err != nil {
		return err
	}
	_, err := awaitReply(ctx, m.done, replyCh)
	return err
}

// UseAndReset empties the bottle and publishes bottle_used followed by
// bottle_reset. It returns the amount that was cleared.
func (m *Manager) UseAndReset(ctx context.Context) (int, domain.BottleState, error) {
	replyCh := make(chan useResult, 1)
	if err := m.send(ctx, useCmd{replyChannel: replyCh}); err != nil {
		return 0, domain.BottleState{}, err
	}
	res, err := awaitReply(ctx, m.done, replyCh)
	return res.used, res.state, err
}

// State is safe to call from any goroutine.
func (m *Manager) State() State {
	return State(m.observed.Load())
}

// Close stops any live session and terminates the actor. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		select {
		case m.cmdCh <- closeCmd{}:
		case <-m.done:
		}
		<-m.done
	})
}

func (m *Manager) send(ctx context.Context, cmd managerCmd) error {
	select {
	case m.cmdCh <- cmd:
		return nil
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func awaitReply[T any](ctx context.Context, done <-chan struct{}, replyCh <-chan T) (T, error) {
	var zero T
	select {
	case v := <-replyCh:
		return v, nil
	case <-done:
		return zero, ErrManagerClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (m *Manager) run() {
	defer close(m.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Live manager panic recovered", "streamer_id", m.broadcasterID, "panic", r)
			m.cancelRetry()
			m.closeSession()
			m.setConnected(false)
		}
	}()

	for {
		select {
		case cmd := <-m.cmdCh:
			if m.handleCommand(cmd) {
				return
			}
		case ev, ok := <-m.events:
			m.handleEvent(ev, ok)
		case <-m.retryCh:
			m.retryTimer, m.retryCh = nil, nil
			m.fire(InputRetryFired)
		}
	}
}

func (m *Manager) handleCommand(cmd managerCmd) (exit bool) {
	switch c := cmd.(type) {
	case startCmd:
		c.replyChannel <- m.handleStart(c.config)
	case stopCmd:
		m.lastErr = ""
		m.fire(InputStop)
		c.replyChannel <- struct{}{}
	case useCmd:
		c.replyChannel <- m.handleUse()
	case openResultCmd:
		m.handleOpenResult(c)
	case closeCmd:
		m.lastErr = ""
		m.fire(InputStop)
		return true
	default:
		slog.Warn("Live manager received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
	}
	return false
}

func (m *Manager) handleStart(cfg domain.BroadcasterConfig) StartResult {
	if m.machine.State().Running() {
		slog.Debug("Start ignored, already running", "streamer_id", m.broadcasterID, "state", m.machine.State())
		return StartAlreadyRunning
	}

	m.config = cfg
	m.store.SetCapacity(cfg.Capacity)
	m.attempts = 0
	m.lastErr = ""
	m.fire(InputStart)
	return StartConnecting
}

func (m *Manager) handleUse() useResult {
	state, used := m.store.Reset()
	m.deps.Metrics.BottlesUsed.Inc()
	m.publish(domain.NewBottleUsedMessage(used, m.deps.Clock.Now()))
	m.publish(domain.NewBottleResetMessage(state))
	slog.Info("Bottle used", "streamer_id", m.broadcasterID, "used", used)
	return useResult{used: used, state: state}
}

func (m *Manager) handleOpenResult(c openResultCmd) {
	if c.generation != m.generation || m.machine.State() != StateConnecting {
		if c.session != nil {
			slog.Debug("Discarding stale webcast session", "streamer_id", m.broadcasterID)
			m.closeQuietly(c.session)
		}
		return
	}
	m.releaseOpen()

	err := c.err
	if err == nil && c.session == nil {
		err = errors.New("webcast source returned no session")
	}
	if err != nil {
		m.deps.Metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		m.lastErr = err.Error()
		slog.Warn("Webcast connect failed", "streamer_id", m.broadcasterID, "unique_id", m.config.UniqueID, "error", err)
		m.fire(InputOpenFailed)
		return
	}

	m.deps.Metrics.ConnectAttempts.WithLabelValues("success").Inc()
	m.session = c.session
	m.events = c.session.Events()
	m.attempts = 0
	m.lastErr = ""
	slog.Info("Webcast connected", "streamer_id", m.broadcasterID, "unique_id", m.config.UniqueID)
	m.fire(InputOpened)
}

func (m *Manager) handleEvent(ev domain.WebcastEvent, ok bool) {
	if !ok {
		m.drop(domain.ErrSessionClosed)
		return
	}

	switch ev.Kind {
	case domain.WebcastGift:
		m.applyGift(ev.Gift)
	case domain.WebcastDisconnected:
		m.drop(ev.Err)
	default:
		slog.Debug("Ignoring webcast event", "streamer_id", m.broadcasterID, "kind", ev.Kind)
	}
}

func (m *Manager) applyGift(raw map[string]any) {
	c := gift.Translate(raw)
	state, crossed := m.store.Apply(c.Points, c.Sender, c.Gift)

	m.deps.Metrics.GiftsApplied.Inc()
	m.deps.Metrics.PointsApplied.Add(float64(c.Points))
	m.publish(domain.NewGiftMessage(c, state))

	if crossed {
		m.deps.Metrics.BottlesFilled.Inc()
		slog.Info("Bottle full", "streamer_id", m.broadcasterID, "capacity", state.Capacity)
		m.publish(domain.NewBottleFullMessage(state))
	}
}

func (m *Manager) drop(err error) {
	m.deps.Metrics.SessionDrops.Inc()
	m.lastErr = "disconnected"
	if err != nil {
		m.lastErr = err.Error()
	}
	slog.Warn("Webcast session dropped", "streamer_id", m.broadcasterID, "unique_id", m.config.UniqueID, "error", err)
	m.fire(InputDropped)
}

// fire feeds in to the machine and executes the resulting actions. Actions
// may yield follow-up inputs, which are processed after the current batch.
func (m *Manager) fire(in Input) bool {
	queue := []Input{in}
	accepted := false

	for i := 0; i < len(queue); i++ {
		from := m.machine.State()
		actions, ok := m.machine.Next(queue[i])
		if i == 0 {
			accepted = ok
		}
		if !ok {
			slog.Debug("Input ignored", "streamer_id", m.broadcasterID, "state", from, "input", queue[i])
			continue
		}

		m.observed.Store(int32(m.machine.State()))
		slog.Debug("Live state changed", "streamer_id", m.broadcasterID, "from", from, "to", m.machine.State(), "input", queue[i])

		for _, a := range actions {
			if next, ok := m.execute(a); ok {
				queue = append(queue, next)
			}
		}
	}
	return accepted
}

func (m *Manager) execute(a Action) (Input, bool) {
	switch a.Kind {
	case ActOpenSession:
		m.openSession()
	case ActCloseSession:
		m.closeSession()
	case ActScheduleRetry:
		return m.scheduleRetry(a.Reason)
	case ActCancelRetry:
		m.cancelRetry()
	case ActSetConnected:
		m.setConnected(a.Connected)
	case ActPublishStatus:
		m.publishStatus()
	}
	return 0, false
}

// openSession dials off the actor goroutine; the result comes back as an
// openResultCmd tagged with the current generation.
func (m *Manager) openSession() {
	m.generation++
	generation := m.generation
	cfg := m.config

	ctx, cancel := context.WithTimeout(context.Background(), m.deps.OpenTimeout)
	m.cancelOpen = cancel

	go func() {
		session, err := m.deps.Source.Open(ctx, cfg)
		select {
		case m.cmdCh <- openResultCmd{generation: generation, session: session, err: err}:
		case <-m.done:
			if session != nil {
				m.closeQuietly(session)
			}
		}
	}()
}

func (m *Manager) releaseOpen() {
	if m.cancelOpen != nil {
		m.cancelOpen()
		m.cancelOpen = nil
	}
}

func (m *Manager) closeSession() {
	m.generation++
	m.releaseOpen()

	if m.session == nil {
		return
	}
	m.closeQuietly(m.session)
	m.session = nil
	m.events = nil
}

func (m *Manager) closeQuietly(s domain.WebcastSession) {
	if err := s.Close(); err != nil {
		slog.Debug("Webcast session close failed", "streamer_id", m.broadcasterID, "error", err)
	}
}

func (m *Manager) scheduleRetry(reason RetryReason) (Input, bool) {
	m.attempts++
	delay, ok := m.deps.Policy.Delay(reason, m.attempts)
	if !ok {
		m.lastErr = fmt.Sprintf("gave up after %d reconnect attempts", m.attempts-1)
		slog.Warn("Giving up reconnecting", "streamer_id", m.broadcasterID, "attempts", m.attempts-1)
		return InputGaveUp, true
	}

	m.cancelRetry()
	m.retryTimer = m.deps.Clock.NewTimer(delay)
	m.retryCh = m.retryTimer.Chan()
	m.deps.Metrics.RetriesScheduled.WithLabelValues(reason.String()).Inc()
	slog.Info("Reconnect scheduled", "streamer_id", m.broadcasterID, "reason", reason, "delay", delay, "attempt", m.attempts)
	return 0, false
}

func (m *Manager) cancelRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer, m.retryCh = nil, nil
}

func (m *Manager) setConnected(connected bool) {
	if connected != m.connected {
		if connected {
			m.deps.Metrics.ConnectedStreamers.Inc()
		} else {
			m.deps.Metrics.ConnectedStreamers.Dec()
		}
		m.connected = connected
	}
	m.store.SetConnected(connected)
}

func (m *Manager) publishStatus() {
	connected := m.machine.State() == StateConnected
	errMsg := ""
	if !connected {
		errMsg = m.lastErr
	}
	m.publish(domain.NewStatusMessage(connected, m.config.UniqueID, errMsg))
}

func (m *Manager) publish(msg any) {
	if err := m.deps.Publisher.Publish(m.broadcasterID, msg); err != nil {
		slog.Error("Failed to publish overlay message", "streamer_id", m.broadcasterID, "error", err)
	}
}
