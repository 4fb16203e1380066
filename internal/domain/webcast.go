package domain

import "context"

type WebcastEventKind int

const (
	WebcastGift WebcastEventKind = iota
	WebcastDisconnected
)

func (k WebcastEventKind) String() string {
	switch k {
	case WebcastGift:
		return "gift"
	case WebcastDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// WebcastEvent is one item of a live session's event stream.
// Gift carries the raw, loosely typed gift payload; Err is set on disconnects.
type WebcastEvent struct {
	Kind WebcastEventKind
	Gift map[string]any
	Err  error
}

// WebcastSession is an open connection to one broadcaster's live feed.
// Events is closed when the session ends for any reason.
type WebcastSession interface {
	Events() <-chan WebcastEvent
	Close() error
}

// WebcastSource opens live sessions. Open blocks until the source confirms the
// connection or fails.
type WebcastSource interface {
	Open(ctx context.Context, cfg BroadcasterConfig) (WebcastSession, error)
}
