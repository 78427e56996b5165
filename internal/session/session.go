package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"market-hunter/internal/logger"
	"market-hunter/internal/protocol"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var ErrFailed = errors.New("session failed: too many consecutive connection attempts")

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Conn is the read side of an open channel.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type Listener func(protocol.Message)

type Config struct {
	URL         string
	Header      http.Header
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// Monitors limits delivery to these monitor ids. Empty means all.
	Monitors []string
}

// Backoff is min(base * 2^attempt, max).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Session keeps one logical subscription to the hub alive, reconnecting
// with exponential backoff until too many attempts in a row fail.
type Session struct {
	cfg    Config
	dialer Dialer
	log    logger.Logger
	filter map[string]bool

	mu        sync.Mutex
	state     State
	attempt   int
	listeners []Listener
	watchers  []func(State)
}

func New(cfg Config, dialer Dialer, log logger.Logger) *Session {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if dialer == nil {
		dialer = WebsocketDialer{Dialer: websocket.DefaultDialer}
	}
	if log == nil {
		log = logger.Nop()
	}

	var filter map[string]bool
	if len(cfg.Monitors) > 0 {
		filter = make(map[string]bool, len(cfg.Monitors))
		for _, id := range cfg.Monitors {
			filter[id] = true
		}
	}

	return &Session{cfg: cfg, dialer: dialer, log: log, filter: filter}
}

// OnMessage registers a listener for application messages.
func (s *Session) OnMessage(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// OnStateChange registers a callback for every state transition.
func (s *Session) OnStateChange(f func(State)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, f)
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt is the number of consecutive failed connection attempts.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// NextDelay is the wait before the next reconnect.
func (s *Session) NextDelay() time.Duration {
	return Backoff(s.Attempt(), s.cfg.BaseDelay, s.cfg.MaxDelay)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	watchers := append([]func(State){}, s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		w(st)
	}
}

// Run drives the state machine until ctx is done or the session fails.
// A failed session can be run again; the attempt counter starts over.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
	s.setState(Disconnected)

	for {
		if err := ctx.Err(); err != nil {
			s.setState(Disconnected)
			return err
		}

		reached := s.connect(ctx)
		if ctx.Err() != nil {
			s.setState(Disconnected)
			return ctx.Err()
		}

		delay := s.NextDelay()
		if !reached {
			s.mu.Lock()
			s.attempt++
			attempt := s.attempt
			s.mu.Unlock()

			if attempt >= s.cfg.MaxAttempts {
				s.log.Error("giving up on hub connection", logger.Int("attempts", attempt))
				s.setState(Failed)
				return ErrFailed
			}
		}

		s.setState(Disconnected)
		s.log.Info("reconnecting", logger.Duration("delay", delay), logger.Int("attempt", s.Attempt()))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(Disconnected)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// connect opens one channel and reads it until it ends. It reports whether
// the handshake completed.
func (s *Session) connect(ctx context.Context) bool {
	conn, err := s.dialer.Dial(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		s.log.Warn("hub dial failed", logger.String("url", s.cfg.URL), logger.Error(err))
		return false
	}
	s.setState(Connecting)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	reached := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("hub connection lost", logger.Bool("established", reached), logger.Error(err))
			}
			return reached
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.log.Warn("dropping malformed message", logger.Error(err))
			continue
		}

		switch msg.Type {
		case protocol.TypeConnectionEstablished:
			if !reached {
				reached = true
				s.mu.Lock()
				s.attempt = 0
				s.mu.Unlock()
				s.setState(Connected)
			}
		case protocol.TypeNewMonitoredProducts:
			if !reached {
				s.log.Debug("dropping update received before handshake")
				continue
			}
			s.dispatch(msg)
		default:
			s.log.Debug("ignoring unknown message type", logger.String("type", msg.Type))
		}
	}
}

func (s *Session) dispatch(msg protocol.Message) {
	if s.filter != nil && !s.filter[msg.MonitorID] {
		return
	}

	s.mu.Lock()
	listeners := append([]Listener{}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(msg)
	}
}

// WebsocketDialer opens channels with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, _, err := d.Dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return ws, nil
}
