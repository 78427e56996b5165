package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"market-hunter/internal/database"
	"market-hunter/internal/dedup"
	"market-hunter/internal/logger"
	"market-hunter/internal/scraper"
)

const (
	defaultInterval    = 30 * time.Second
	defaultMaxMonitors = 10
)

// Service is the monitor engine: the registry of schedules plus the
// operations exposed to the API, the bot and the event bus.
type Service struct {
	cfg      Config
	store    Store
	sources  Searcher
	hub      Broadcaster
	notifier Notifier
	journal  TickRecorder
	cache    SearchCache
	dedup    *dedup.Deduplicator
	log      logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	schedules map[string]*schedule

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, d Deps) *Service {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = defaultInterval
	}
	if cfg.MinInterval <= 0 || cfg.MinInterval > cfg.DefaultInterval {
		cfg.MinInterval = cfg.DefaultInterval
	}
	if cfg.DefaultMaxMonitors <= 0 {
		cfg.DefaultMaxMonitors = defaultMaxMonitors
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.TimeNow == nil {
		d.TimeNow = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		store:     d.Store,
		sources:   d.Sources,
		hub:       d.Hub,
		notifier:  d.Notifier,
		journal:   d.Journal,
		cache:     d.Cache,
		dedup:     dedup.New(),
		log:       d.Logger,
		now:       d.TimeNow,
		schedules: make(map[string]*schedule),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start validates the filter, persists a new monitor for ownerID and arms
// its schedule. interval 0 means the configured default.
func (s *Service) Start(ctx context.Context, ownerID uint, f scraper.SearchFilters, interval time.Duration) (*database.Monitor, error) {
	f = f.Normalize()
	if err := s.validate(f); err != nil {
		return nil, err
	}

	maxMonitors, minInterval, err := s.limits(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if interval == 0 {
		interval = s.cfg.DefaultInterval
	}
	if interval < minInterval {
		return nil, fmt.Errorf("%w: %w (%s)", ErrInvalidFilter, ErrIntervalTooShort, minInterval)
	}

	active, err := s.store.CountActiveMonitors(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count monitors: %w", err)
	}
	if active >= maxMonitors {
		return nil, ErrQuotaExceeded
	}

	m := &database.Monitor{
		UserID:          ownerID,
		Query:           f.Query,
		Marketplace:     f.Marketplace,
		MinPrice:        f.MinPrice,
		MaxPrice:        f.MaxPrice,
		City:            f.City,
		IntervalSeconds: int(interval / time.Second),
	}
	if err := s.store.CreateMonitor(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}

	s.arm(m)

	s.log.Info("monitor started",
		logger.String("monitor_id", m.ID),
		logger.Uint("owner_id", ownerID),
		logger.String("query", m.Query))

	if s.notifier != nil {
		if err := s.notifier.MonitorStarted(ctx, m); err != nil {
			s.log.Warn("failed to publish monitor start", logger.Error(err))
		}
	}
	return m, nil
}

func (s *Service) validate(f scraper.SearchFilters) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	if f.Marketplace == "" {
		return nil
	}
	for _, name := range s.sources.Sources() {
		if strings.EqualFold(name, f.Marketplace) {
			return nil
		}
	}
	return fmt.Errorf("%w: %w %q", ErrInvalidFilter, ErrUnknownMarketplace, f.Marketplace)
}

func (s *Service) limits(ctx context.Context, ownerID uint) (int, time.Duration, error) {
	maxMonitors, minInterval := s.cfg.DefaultMaxMonitors, s.cfg.MinInterval

	ent, err := s.store.GetEntitlement(ctx, ownerID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent != nil {
		if ent.MaxMonitors > 0 {
			maxMonitors = ent.MaxMonitors
		}
		if ent.MinInterval() > 0 {
			minInterval = ent.MinInterval()
		}
	}
	return maxMonitors, minInterval, nil
}

// Stop tears down the schedule and deactivates the row. Stopping a stopped
// monitor is a no-op; an unknown id is ErrMonitorNotFound.
func (s *Service) Stop(ctx context.Context, monitorID string) error {
	m, err := s.store.GetMonitor(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("failed to load monitor: %w", err)
	}
	if m == nil {
		return ErrMonitorNotFound
	}

	halted := s.disarm(monitorID)
	if !m.IsActive {
		return nil
	}

	changed, err := s.store.DeactivateMonitor(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("failed to deactivate monitor: %w", err)
	}
	if !changed {
		// a concurrent Stop got there first
		return nil
	}
	m.IsActive = false

	s.log.Info("monitor stopped", logger.String("monitor_id", monitorID), logger.Bool("was_running", halted))

	if s.notifier != nil {
		if err := s.notifier.MonitorStopped(ctx, m); err != nil {
			s.log.Warn("failed to publish monitor stop", logger.Error(err))
		}
	}
	return nil
}

// Owned returns the monitor if it belongs to ownerID. Foreign monitors are
// reported as not found.
func (s *Service) Owned(ctx context.Context, ownerID uint, monitorID string) (*database.Monitor, error) {
	m, err := s.store.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitor: %w", err)
	}
	if m == nil || m.UserID != ownerID {
		return nil, ErrMonitorNotFound
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, ownerID uint) ([]*database.Monitor, error) {
	return s.store.GetUserMonitors(ctx, ownerID)
}

func (s *Service) Listings(ctx context.Context, monitorID string, limit int) ([]*database.Listing, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.GetMonitorListings(ctx, monitorID, limit)
}

// Trigger runs one tick of a running monitor now, serialized with its timer.
func (s *Service) Trigger(ctx context.Context, monitorID string) (TickReport, error) {
	sc := s.lookup(monitorID)
	if sc == nil || sc.State() == StateStopped {
		return TickReport{}, ErrNotRunning
	}

	report, alive := s.tick(ctx, sc, "trigger")
	if !alive {
		s.terminate(sc)
		return report, ErrNotRunning
	}
	return report, nil
}

// TriggerAll runs one tick of every running monitor, one after another.
func (s *Service) TriggerAll(ctx context.Context) int {
	n := 0
	for _, id := range s.Running() {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Trigger(ctx, id); err == nil {
			n++
		}
	}
	return n
}

// Search runs a one-off query without creating a monitor. Matching listings
// still go to the global listing store.
func (s *Service) Search(ctx context.Context, f scraper.SearchFilters) ([]scraper.Listing, error) {
	f = f.Normalize()
	if err := s.validate(f); err != nil {
		return nil, err
	}

	key := f.CacheKey()
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.log.Debug("search served from cache", logger.String("query", f.Query))
			return cached, nil
		}
		if !s.cache.Allow(ctx, key) {
			return nil, ErrRateLimited
		}
	}

	res := s.sources.Collect(ctx, f.Query)
	matched := make([]scraper.Listing, 0, len(res.Listings))
	now := s.now()
	for _, l := range res.Listings {
		if !f.Match(l) {
			continue
		}
		ident := dedup.KeyOf(l)
		l.URL, l.Marketplace = ident.URL, ident.Marketplace
		matched = append(matched, l)

		_, _, err := s.dedup.Admit(dedup.GlobalScope, ident, func() (uint, bool, error) {
			return s.store.SaveListing(ctx, database.NewListing(l, now))
		})
		if err != nil {
			s.log.Warn("failed to store searched listing", logger.String("url", l.URL), logger.Error(err))
		}
	}

	if s.cache != nil && len(res.Failed) == 0 {
		s.cache.Set(ctx, key, matched)
	}
	return matched, nil
}

// Resume rebuilds the seen-sets from the store and arms every active
// monitor. Called once on process start.
func (s *Service) Resume(ctx context.Context) (int, error) {
	keys, err := s.store.ListingKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load listing keys: %w", err)
	}
	for _, k := range keys {
		s.dedup.Seed(dedup.GlobalScope, dedup.Key{URL: k.URL, Marketplace: k.Marketplace}, k.ID)
	}

	monitors, err := s.store.GetActiveMonitors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active monitors: %w", err)
	}

	for _, m := range monitors {
		edges, err := s.store.MonitorListingKeys(ctx, m.ID)
		if err != nil {
			s.log.Error("failed to load monitor history, not resuming",
				logger.String("monitor_id", m.ID), logger.Error(err))
			continue
		}
		for _, k := range edges {
			s.dedup.Seed(m.ID, dedup.Key{URL: k.URL, Marketplace: k.Marketplace}, k.ID)
		}
		s.arm(m)
	}

	s.log.Info("monitors resumed",
		logger.Int("monitors", len(monitors)),
		logger.Int("known_listings", len(keys)))
	return len(monitors), nil
}

// Shutdown halts every schedule, marks its monitor inactive and waits for
// in-flight ticks.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	schedules := make([]*schedule, 0, len(s.schedules))
	for id, sc := range s.schedules {
		schedules = append(schedules, sc)
		delete(s.schedules, id)
	}
	s.mu.Unlock()

	for _, sc := range schedules {
		if !sc.halt() {
			continue
		}
		if _, err := s.store.DeactivateMonitor(ctx, sc.id); err != nil {
			s.log.Error("failed to deactivate monitor on shutdown",
				logger.String("monitor_id", sc.id), logger.Error(err))
		}
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("monitor engine stopped", logger.Int("schedules", len(schedules)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
