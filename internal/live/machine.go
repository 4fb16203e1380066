package live

// State is the lifecycle phase of one broadcaster's live connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRetryPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetryPending:
		return "retry_pending"
	default:
		return "unknown"
	}
}

// Running reports whether a Start is in effect.
func (s State) Running() bool { return s != StateIdle }

type Input int

const (
	InputStart Input = iota
	InputStop
	InputOpened
	InputOpenFailed
	InputDropped
	InputRetryFired
	InputGaveUp
)

func (in Input) String() string {
	switch in {
	case InputStart:
		return "start"
	case InputStop:
		return "stop"
	case InputOpened:
		return "opened"
	case InputOpenFailed:
		return "open_failed"
	case InputDropped:
		return "dropped"
	case InputRetryFired:
		return "retry_fired"
	case InputGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// RetryReason selects which delay a retry uses.
type RetryReason int

const (
	ReasonOpenFailed RetryReason = iota
	ReasonDropped
)

func (r RetryReason) String() string {
	if r == ReasonDropped {
		return "dropped"
	}
	return "open_failed"
}

type ActionKind int

const (
	ActOpenSession ActionKind = iota
	ActCloseSession
	ActScheduleRetry
	ActCancelRetry
	ActSetConnected
	ActPublishStatus
)

// Action is a side effect requested by a transition. Connected is used by
// ActSetConnected, Reason by ActScheduleRetry.
type Action struct {
	Kind      ActionKind
	Connected bool
	Reason    RetryReason
}

var (
	openSession   = Action{Kind: ActOpenSession}
	closeSession  = Action{Kind: ActCloseSession}
	cancelRetry   = Action{Kind: ActCancelRetry}
	publishStatus = Action{Kind: ActPublishStatus}
)

func setConnected(v bool) Action { return Action{Kind: ActSetConnected, Connected: v} }

func scheduleRetry(r RetryReason) Action { return Action{Kind: ActScheduleRetry, Reason: r} }

// Machine is the pure connection state machine. It performs no I/O.
type Machine struct {
	state State
}

func (m *Machine) State() State { return m.state }

// Next applies in and returns the actions to execute, in order. ok is false
// when the input does not apply to the current state; the state is then
// unchanged and no actions are returned.
func (m *Machine) Next(in Input) (actions []Action, ok bool) {
	next, actions, ok := transition(m.state, in)
	if ok {
		m.state = next
	}
	return actions, ok
}

func transition(s State, in Input) (State, []Action, bool) {
	if in == InputStop {
		if s == StateIdle {
			return s, nil, false
		}
		return StateIdle, []Action{cancelRetry, closeSession, setConnected(false), publishStatus}, true
	}

	switch s {
	case StateIdle:
		if in == InputStart {
			return StateConnecting, []Action{openSession}, true
		}
	case StateConnecting:
		switch in {
		case InputOpened:
			return StateConnected, []Action{setConnected(true), publishStatus}, true
		case InputOpenFailed:
			return StateRetryPending, []Action{setConnected(false), publishStatus, scheduleRetry(ReasonOpenFailed)}, true
		}
	case StateConnected:
		if in == InputDropped {
			return StateRetryPending, []Action{closeSession, setConnected(false), publishStatus, scheduleRetry(ReasonDropped)}, true
		}
	case StateRetryPending:
		switch in {
		case InputRetryFired:
			return StateConnecting, []Action{openSession}, true
		case InputGaveUp:
			return StateIdle, []Action{cancelRetry, publishStatus}, true
		}
	}
	return s, nil, false
}
