package webcast

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/jonboulle/clockwork"
)

// ErrRelayDisconnected is the event error when the relay reports the live
// stream ended.
var ErrRelayDisconnected = errors.New("relay reported disconnect")

type session struct {
	conn         *websocket.Conn
	clock        clockwork.Clock
	pingInterval time.Duration
	events       chan domain.WebcastEvent
	done         chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
}

func newSession(conn *websocket.Conn, clock clockwork.Clock, pingInterval time.Duration) *session {
	s := &session{
		conn:         conn,
		clock:        clock,
		pingInterval: pingInterval,
		events:       make(chan domain.WebcastEvent, eventBuffer),
		done:         make(chan struct{}),
	}

	extend := func() { _ = conn.SetReadDeadline(clock.Now().Add(pongWait)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	s.wg.Add(2)
	go s.readLoop(extend)
	go s.keepalive()
	return s
}

func (s *session) Events() <-chan domain.WebcastEvent { return s.events }

// Close ends the session. No disconnect event is emitted for a local close.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, s.clock.Now().Add(writeWait))
		err = s.conn.Close()
	})
	s.wg.Wait()
	return err
}

func (s *session) readLoop(extend func()) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.emit(domain.WebcastEvent{Kind: domain.WebcastDisconnected, Err: err})
			return
		}
		extend()

		ev, ok := decodeFrame(data)
		if !ok {
			continue
		}
		if !s.emit(ev) || ev.Kind == domain.WebcastDisconnected {
			return
		}
	}
}

// emit reports false once the session was closed locally.
func (s *session) emit(ev domain.WebcastEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) keepalive() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.Chan():
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.clock.Now().Add(writeWait)); err != nil {
				slog.Debug("Relay ping failed", "error", err)
				_ = s.conn.Close()
				return
			}
		}
	}
}

func decodeFrame(data []byte) (domain.WebcastEvent, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Debug("Dropping malformed relay frame", "error", err)
		return domain.WebcastEvent{}, false
	}

	kind, _ := raw["type"].(string)
	switch strings.ToLower(kind) {
	case "gift":
		delete(raw, "type")
		return domain.WebcastEvent{Kind: domain.WebcastGift, Gift: raw}, true
	case "disconnected":
		return domain.WebcastEvent{Kind: domain.WebcastDisconnected, Err: ErrRelayDisconnected}, true
	default:
		return domain.WebcastEvent{}, false
	}
}
