package monitor

import (
	"context"
	"sync"
	"time"

	"market-hunter/internal/database"
	"market-hunter/internal/logger"
)

type State int

const (
	StatePending State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// schedule owns the timer of one monitor.
type schedule struct {
	id       string
	ownerID  uint
	interval time.Duration

	mu    sync.Mutex
	state State

	// tickMu serializes ticks from the timer and from Trigger.
	tickMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (sc *schedule) State() State {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state
}

// halt moves the schedule to Stopped. It reports false if it already was.
func (sc *schedule) halt() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state == StateStopped {
		return false
	}
	sc.state = StateStopped
	sc.cancel()
	return true
}

// arm registers a schedule for m and starts its timer. If m already has a
// live schedule that one is returned and nothing new is armed.
func (s *Service) arm(m *database.Monitor) (*schedule, bool) {
	s.mu.Lock()
	if existing, ok := s.schedules[m.ID]; ok && existing.State() != StateStopped {
		s.mu.Unlock()
		return existing, true
	}

	interval := m.Interval()
	if interval <= 0 {
		interval = s.cfg.DefaultInterval
	}

	ctx, cancel := context.WithCancel(s.ctx)
	sc := &schedule{
		id:       m.ID,
		ownerID:  m.UserID,
		interval: interval,
		state:    StatePending,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.schedules[m.ID] = sc
	s.mu.Unlock()

	sc.mu.Lock()
	if sc.state == StatePending {
		sc.state = StateRunning
	}
	sc.mu.Unlock()

	s.wg.Add(1)
	go s.run(sc)

	s.log.Info("monitor armed",
		logger.String("monitor_id", m.ID),
		logger.Uint("owner_id", m.UserID),
		logger.Duration("interval", interval))
	return sc, false
}

// disarm stops and forgets the schedule of id. It reports false when there
// was nothing running.
func (s *Service) disarm(id string) bool {
	s.mu.Lock()
	sc, ok := s.schedules[id]
	if ok {
		delete(s.schedules, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	return sc.halt()
}

func (s *Service) lookup(id string) *schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules[id]
}

// forget removes sc from the registry if it is still the registered one.
func (s *Service) forget(sc *schedule) {
	s.mu.Lock()
	if s.schedules[sc.id] == sc {
		delete(s.schedules, sc.id)
	}
	s.mu.Unlock()
}

func (s *Service) run(sc *schedule) {
	defer s.wg.Done()
	defer close(sc.done)
	defer s.release(sc)

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			s.log.Debug("monitor schedule stopped", logger.String("monitor_id", sc.id))
			return
		case <-ticker.C:
			if _, alive := s.tick(s.ctx, sc, "timer"); !alive {
				s.terminate(sc)
				return
			}
		}
	}
}

// release frees the seen-set of a halted schedule once any in-flight tick
// has finished with it.
func (s *Service) release(sc *schedule) {
	sc.tickMu.Lock()
	defer sc.tickMu.Unlock()
	s.dedup.Drop(sc.id)
}

// terminate ends a schedule whose monitor row is gone or inactive.
func (s *Service) terminate(sc *schedule) {
	if sc.halt() {
		s.log.Info("monitor is no longer active, schedule terminated", logger.String("monitor_id", sc.id))
	}
	s.forget(sc)
}

// State reports the registry state of a monitor. Monitors that were never
// armed or were stopped and forgotten report StateStopped.
func (s *Service) State(id string) State {
	sc := s.lookup(id)
	if sc == nil {
		return StateStopped
	}
	return sc.State()
}

// Running lists the ids of every armed monitor.
func (s *Service) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.schedules))
	for id, sc := range s.schedules {
		if sc.State() != StateStopped {
			ids = append(ids, id)
		}
	}
	return ids
}
