// Package webcast connects to a broadcaster's live gift feed through a
// WebSocket relay.
package webcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/version"
	"github.com/jonboulle/clockwork"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	pongWait                = 2 * defaultPingInterval
	writeWait               = 5 * time.Second
	maxFrameSize            = 1 << 16
	eventBuffer             = 64
)

// ErrRelayRejected is returned when the relay answers the handshake with an
// error frame, e.g. because the broadcaster is not live.
var ErrRelayRejected = errors.New("relay rejected connection")

type frame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Config holds relay connection settings.
type Config struct {
	RelayURL         string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
}

// Source opens one relay connection per broadcaster.
type Source struct {
	relay            *url.URL
	dialer           *websocket.Dialer
	clock            clockwork.Clock
	handshakeTimeout time.Duration
	pingInterval     time.Duration
}

func NewSource(cfg Config, clock clockwork.Clock) (*Source, error) {
	relay, err := url.Parse(cfg.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	if relay.Scheme != "ws" && relay.Scheme != "wss" {
		return nil, fmt.Errorf("invalid relay url: scheme must be ws or wss, got %q", relay.Scheme)
	}

	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}

	return &Source{
		relay:            relay,
		dialer:           &websocket.Dialer{HandshakeTimeout: handshake, Proxy: http.ProxyFromEnvironment},
		clock:            clock,
		handshakeTimeout: handshake,
		pingInterval:     ping,
	}, nil
}

// Open dials the relay and waits for it to confirm the live connection.
// The returned session outlives ctx; only the handshake is bound to it.
func (s *Source) Open(ctx context.Context, cfg domain.BroadcasterConfig) (domain.WebcastSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	target := *s.relay
	q := target.Query()
	q.Set("uniqueId", cfg.UniqueID)
	target.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if cfg.Credential != "" {
		header.Set("Authorization", "Bearer "+cfg.Credential)
	}

	conn, resp, err := s.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	if err := s.handshake(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	sess := newSession(conn, s.clock, s.pingInterval)
	slog.Debug("Relay session opened", "unique_id", cfg.UniqueID)
	return sess, nil
}

func (s *Source) handshake(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(s.clock.Now().Add(s.handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to read relay handshake: %w", err)
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse relay handshake: %w", err)
	}
	switch strings.ToLower(f.Type) {
	case "connected":
		return nil
	case "error":
		msg := f.Message
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("%w: %s", ErrRelayRejected, msg)
	default:
		return fmt.Errorf("unexpected relay handshake frame %q", f.Type)
	}
}
