package monitor

import (
	"context"
	"time"

	"market-hunter/internal/database"
	"market-hunter/internal/dedup"
	"market-hunter/internal/logger"
	"market-hunter/internal/protocol"
	"market-hunter/internal/scraper"
)

// TickReport summarizes one poll of one monitor.
type TickReport struct {
	MonitorID     string        `json:"monitor_id"`
	OwnerID       uint          `json:"owner_id"`
	Reason        string        `json:"reason"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Candidates    int           `json:"candidates"`
	Matched       int           `json:"matched"`
	NewListings   int           `json:"new_listings"`
	NewLinks      int           `json:"new_links"`
	SourceErrors  int           `json:"source_errors"`
	PersistErrors int           `json:"persist_errors"`
	Broadcast     bool          `json:"broadcast"`
	Discarded     bool          `json:"discarded"`
}

// tick runs one poll-aggregate-filter-persist-broadcast cycle. alive is
// false when the monitor row is missing or inactive and the schedule
// should end.
func (s *Service) tick(ctx context.Context, sc *schedule, reason string) (report TickReport, alive bool) {
	sc.tickMu.Lock()
	defer sc.tickMu.Unlock()

	report = TickReport{MonitorID: sc.id, OwnerID: sc.ownerID, Reason: reason, StartedAt: s.now()}
	log := s.log.With(logger.String("monitor_id", sc.id), logger.String("reason", reason))

	if sc.State() == StateStopped {
		return report, false
	}

	m, err := s.store.GetMonitor(ctx, sc.id)
	if err != nil {
		log.Warn("failed to load monitor, skipping tick", logger.Error(err))
		return report, true
	}
	if m == nil || !m.IsActive {
		return report, false
	}

	filters := m.Filters()
	res := s.sources.Collect(ctx, filters.Query)
	report.Candidates = len(res.Listings)
	report.SourceErrors = len(res.Failed)

	var batch []protocol.Product
	for _, candidate := range res.Listings {
		if !filters.Match(candidate) {
			continue
		}
		report.Matched++

		product, created, linked, err := s.admit(ctx, m, candidate)
		if err != nil {
			report.PersistErrors++
			log.Warn("failed to persist listing",
				logger.String("url", candidate.URL),
				logger.String("marketplace", candidate.Marketplace),
				logger.Error(err))
			continue
		}
		if created {
			report.NewListings++
		}
		if linked {
			report.NewLinks++
			batch = append(batch, product)
		}
	}

	if len(batch) > 0 {
		report.Broadcast = s.broadcast(sc, batch)
		report.Discarded = !report.Broadcast
		if report.Discarded {
			log.Info("tick finished after stop, broadcast discarded", logger.Int("products", len(batch)))
		} else if s.notifier != nil {
			if err := s.notifier.NewProducts(ctx, m, batch); err != nil {
				log.Warn("failed to publish new products", logger.Error(err))
			}
		}
	}

	report.Duration = s.now().Sub(report.StartedAt)
	s.record(ctx, report)
	return report, true
}

// admit runs a candidate through the global and the monitor seen-sets.
// created means a new listing row, linked means a new monitor edge.
func (s *Service) admit(ctx context.Context, m *database.Monitor, candidate scraper.Listing) (protocol.Product, bool, bool, error) {
	key := dedup.KeyOf(candidate)
	candidate.URL = key.URL
	candidate.Marketplace = key.Marketplace
	now := s.now()

	listingID, created, err := s.dedup.Admit(dedup.GlobalScope, key, func() (uint, bool, error) {
		return s.store.SaveListing(ctx, database.NewListing(candidate, now))
	})
	if err != nil {
		return protocol.Product{}, false, false, err
	}

	_, linked, err := s.dedup.Admit(m.ID, key, func() (uint, bool, error) {
		ok, err := s.store.LinkListing(ctx, m.ID, listingID)
		return listingID, ok, err
	})
	if err != nil {
		return protocol.Product{}, created, false, err
	}

	return toProduct(listingID, candidate, now), created, linked, nil
}

// broadcast pushes one scoped message unless the schedule was stopped while
// the tick was running.
func (s *Service) broadcast(sc *schedule, batch []protocol.Product) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state == StateStopped {
		return false
	}
	s.hub.BroadcastScoped(sc.id, sc.ownerID, protocol.NewMonitoredProducts(sc.id, batch))
	return true
}

func (s *Service) record(ctx context.Context, r TickReport) {
	s.log.Debug("tick done",
		logger.String("monitor_id", r.MonitorID),
		logger.Int("candidates", r.Candidates),
		logger.Int("matched", r.Matched),
		logger.Int("new_links", r.NewLinks),
		logger.Int("source_errors", r.SourceErrors),
		logger.Duration("took", r.Duration))

	if s.journal == nil {
		return
	}
	if err := s.journal.RecordTick(ctx, r); err != nil {
		s.log.Warn("failed to record tick", logger.String("monitor_id", r.MonitorID), logger.Error(err))
	}
}

func toProduct(id uint, l scraper.Listing, discoveredAt time.Time) protocol.Product {
	return protocol.Product{
		ID:           id,
		URL:          l.URL,
		Marketplace:  l.Marketplace,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		ImageURL:     l.ImageURL,
		Location:     l.Location,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		DiscoveredAt: discoveredAt,
	}
}

// ProductFromListing converts a stored row for the wire.
func ProductFromListing(l *database.Listing) protocol.Product {
	return protocol.Product{
		ID:           l.ID,
		URL:          l.URL,
		Marketplace:  l.Marketplace,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		ImageURL:     l.ImageURL,
		Location:     l.Location,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		DiscoveredAt: l.DiscoveredAt,
	}
}
