package dedup

import (
	"strings"
	"sync"

	"market-hunter/internal/scraper"
)

// GlobalScope is the scope of the listing store itself. Every other scope is
// a monitor id.
const GlobalScope = ""

// Key identifies a listing. Price or title changes do not change the key.
type Key struct {
	URL         string
	Marketplace string
}

func KeyOf(l scraper.Listing) Key {
	return Key{
		URL:         scraper.NormalizeURL(l.URL),
		Marketplace: strings.ToLower(strings.TrimSpace(l.Marketplace)),
	}
}

// CommitFunc persists a candidate the first time its key is admitted to a
// scope. It returns the stored listing id and whether the write created
// anything.
type CommitFunc func() (id uint, created bool, err error)

type mark struct {
	mu      sync.Mutex
	id      uint
	settled bool
}

type seenSet struct {
	mu    sync.Mutex
	marks map[Key]*mark
}

func (s *seenSet) get(k Key) *mark {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.marks[k]
	if !ok {
		m = &mark{}
		s.marks[k] = m
	}
	return m
}

// Deduplicator keeps one seen-set per scope. Check-and-mark is atomic per
// (scope, key): concurrent callers for the same key wait for the first one
// and then observe its result.
type Deduplicator struct {
	mu     sync.Mutex
	scopes map[string]*seenSet
}

func New() *Deduplicator {
	return &Deduplicator{scopes: make(map[string]*seenSet)}
}

func (d *Deduplicator) scope(name string) *seenSet {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.scopes[name]
	if !ok {
		s = &seenSet{marks: make(map[Key]*mark)}
		d.scopes[name] = s
	}
	return s
}

// Admit runs commit only if key has not been settled in scope yet. A failed
// commit leaves the key unseen so a later tick retries it. novel is true
// only for the caller whose commit created the record.
func (d *Deduplicator) Admit(scope string, key Key, commit CommitFunc) (id uint, novel bool, err error) {
	m := d.scope(scope).get(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settled {
		return m.id, false, nil
	}

	id, created, err := commit()
	if err != nil {
		return 0, false, err
	}
	m.id = id
	m.settled = true
	return id, created, nil
}

// IsNovel reports whether key is new to scope and marks it seen.
func (d *Deduplicator) IsNovel(scope string, key Key) bool {
	_, novel, _ := d.Admit(scope, key, func() (uint, bool, error) { return 0, true, nil })
	return novel
}

// Seen reports whether key is settled in scope without marking it.
func (d *Deduplicator) Seen(scope string, key Key) bool {
	d.mu.Lock()
	s, ok := d.scopes[scope]
	d.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	m, ok := s.marks[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

// Seed marks key as already stored under id. Used when rebuilding the
// seen-sets from the database.
func (d *Deduplicator) Seed(scope string, key Key, id uint) {
	m := d.scope(scope).get(key)

	m.mu.Lock()
	m.id = id
	m.settled = true
	m.mu.Unlock()
}

// Drop forgets a scope entirely.
func (d *Deduplicator) Drop(scope string) {
	d.mu.Lock()
	delete(d.scopes, scope)
	d.mu.Unlock()
}

// Len counts the settled keys of scope.
func (d *Deduplicator) Len(scope string) int {
	d.mu.Lock()
	s, ok := d.scopes[scope]
	d.mu.Unlock()
	if !ok {
		return 0
	}

	s.mu.Lock()
	marks := make([]*mark, 0, len(s.marks))
	for _, m := range s.marks {
		marks = append(marks, m)
	}
	s.mu.Unlock()

	n := 0
	for _, m := range marks {
		m.mu.Lock()
		if m.settled {
			n++
		}
		m.mu.Unlock()
	}
	return n
}
