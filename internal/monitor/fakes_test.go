package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"market-hunter/internal/aggregator"
	"market-hunter/internal/database"
	"market-hunter/internal/protocol"
	"market-hunter/internal/scraper"
)

// memStore keeps the same uniqueness rules as the Postgres schema.
type memStore struct {
	mu sync.Mutex

	monitors     map[string]*database.Monitor
	listings     map[uint]*database.Listing
	byIdentity   map[[2]string]uint
	edges        map[string]map[uint]time.Time
	entitlements map[uint]*database.Entitlement
	nextID       uint

	failSave  map[string]bool
	saveCalls int
	linkCalls int
	getDelay  time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		monitors:     make(map[string]*database.Monitor),
		listings:     make(map[uint]*database.Listing),
		byIdentity:   make(map[[2]string]uint),
		edges:        make(map[string]map[uint]time.Time),
		entitlements: make(map[uint]*database.Entitlement),
		failSave:     make(map[string]bool),
	}
}

func (s *memStore) CreateMonitor(ctx context.Context, m *database.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.IsActive = true
	m.CreatedAt = time.Now()
	cp := *m
	s.monitors[m.ID] = &cp
	return nil
}

func (s *memStore) GetMonitor(ctx context.Context, id string) (*database.Monitor, error) {
	s.mu.Lock()
	delay := s.getDelay
	m, ok := s.monitors[id]
	var cp database.Monitor
	if ok {
		cp = *m
	}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *memStore) GetUserMonitors(ctx context.Context, userID uint) ([]*database.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Monitor
	for _, m := range s.monitors {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) GetActiveMonitors(ctx context.Context) ([]*database.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Monitor
	for _, m := range s.monitors {
		if m.IsActive {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) CountActiveMonitors(ctx context.Context, userID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.monitors {
		if m.UserID == userID && m.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeactivateMonitor(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok || !m.IsActive {
		return false, nil
	}
	m.IsActive = false
	return true, nil
}

func (s *memStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[id].IsActive = active
}

func (s *memStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitors, id)
}

func (s *memStore) GetEntitlement(ctx context.Context, userID uint) (*database.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entitlements[userID], nil
}

func (s *memStore) SaveListing(ctx context.Context, l *database.Listing) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failSave[l.URL] {
		return 0, false, errors.New("insert failed")
	}
	ident := [2]string{l.URL, l.Marketplace}
	if id, ok := s.byIdentity[ident]; ok {
		return id, false, nil
	}
	s.nextID++
	cp := *l
	cp.ID = s.nextID
	s.listings[cp.ID] = &cp
	s.byIdentity[ident] = cp.ID
	return cp.ID, true, nil
}

func (s *memStore) LinkListing(ctx context.Context, monitorID string, listingID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkCalls++
	if s.edges[monitorID] == nil {
		s.edges[monitorID] = make(map[uint]time.Time)
	}
	if _, ok := s.edges[monitorID][listingID]; ok {
		return false, nil
	}
	s.edges[monitorID][listingID] = time.Now()
	return true, nil
}

func (s *memStore) ListingKeys(ctx context.Context) ([]database.ListingKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []database.ListingKey
	for _, l := range s.listings {
		keys = append(keys, database.ListingKey{ID: l.ID, URL: l.URL, Marketplace: l.Marketplace})
	}
	return keys, nil
}

func (s *memStore) MonitorListingKeys(ctx context.Context, monitorID string) ([]database.ListingKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []database.ListingKey
	for id := range s.edges[monitorID] {
		l := s.listings[id]
		keys = append(keys, database.ListingKey{ID: l.ID, URL: l.URL, Marketplace: l.Marketplace})
	}
	return keys, nil
}

func (s *memStore) GetMonitorListings(ctx context.Context, monitorID string, limit int) ([]*database.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Listing
	for id := range s.edges[monitorID] {
		cp := *s.listings[id]
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) counts() (listings, edges int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		edges += len(e)
	}
	return len(s.listings), edges
}

func (s *memStore) edgeCount(monitorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges[monitorID])
}

// fakeSources returns whatever was last set, for every query.
type fakeSources struct {
	mu       sync.Mutex
	listings []scraper.Listing
	failed   []string
	calls    int
	delay    time.Duration
	names    []string

	inFlight    int
	maxInFlight int
}

func (f *fakeSources) set(listings ...scraper.Listing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings = listings
}

func (f *fakeSources) Collect(ctx context.Context, query string) aggregator.Result {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	out := append([]scraper.Listing(nil), f.listings...)
	failed := append([]string(nil), f.failed...)
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return aggregator.Result{Listings: out, Failed: failed}
}

func (f *fakeSources) Sources() []string {
	if f.names == nil {
		return []string{"olx", "prom"}
	}
	return f.names
}

func (f *fakeSources) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sent struct {
	monitorID string
	ownerID   uint
	msg       protocol.Message
}

type fakeHub struct {
	mu   sync.Mutex
	sent []sent
}

func (h *fakeHub) BroadcastScoped(monitorID string, ownerID uint, msg protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sent{monitorID: monitorID, ownerID: ownerID, msg: msg})
}

func (h *fakeHub) messages() []sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sent(nil), h.sent...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	started  []string
	stopped  []string
	products int
}

func (n *fakeNotifier) MonitorStarted(ctx context.Context, m *database.Monitor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, m.ID)
	return nil
}

func (n *fakeNotifier) MonitorStopped(ctx context.Context, m *database.Monitor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, m.ID)
	return nil
}

func (n *fakeNotifier) NewProducts(ctx context.Context, m *database.Monitor, products []protocol.Product) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.products += len(products)
	return nil
}

type fakeJournal struct {
	mu      sync.Mutex
	reports []TickReport
}

func (j *fakeJournal) RecordTick(ctx context.Context, r TickReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports = append(j.reports, r)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	values  map[string][]scraper.Listing
	allowed map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]scraper.Listing), allowed: make(map[string]bool)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]scraper.Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, key string, listings []scraper.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = listings
}

func (c *fakeCache) Allow(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allowed[key] {
		return false
	}
	c.allowed[key] = true
	return true
}

// reopen lets key through the rate gate again.
func (c *fakeCache) reopen(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.allowed, key)
}

func (c *fakeCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}
