package dedup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"market-hunter/internal/scraper"
)

func TestKeyOfIgnoresPriceAndTitle(t *testing.T) {
	a := scraper.Listing{URL: "https://olx.ua/d/item-1#gallery", Marketplace: "OLX", Title: "old",
		Price: decimal.NewNullDecimal(decimal.NewFromInt(600))}
	b := scraper.Listing{URL: " https://olx.ua/d/item-1 ", Marketplace: "olx", Title: "new",
		Price: decimal.NewNullDecimal(decimal.NewFromInt(550))}

	if KeyOf(a) != KeyOf(b) {
		t.Errorf("Expected equal keys, got %+v and %+v", KeyOf(a), KeyOf(b))
	}
}

func TestIsNovelMarksSeen(t *testing.T) {
	d := New()
	k := Key{URL: "https://olx.ua/d/item-1", Marketplace: "olx"}

	if !d.IsNovel("m1", k) {
		t.Fatal("First sighting should be novel")
	}
	if d.IsNovel("m1", k) {
		t.Error("Second sighting should not be novel")
	}
	if !d.IsNovel("m2", k) {
		t.Error("Scopes must be independent")
	}
	if d.Len("m1") != 1 {
		t.Errorf("Expected 1 key in m1, got %d", d.Len("m1"))
	}
}

func TestAdmitFailedCommitStaysUnseen(t *testing.T) {
	d := New()
	k := Key{URL: "https://olx.ua/d/item-2", Marketplace: "olx"}

	_, novel, err := d.Admit(GlobalScope, k, func() (uint, bool, error) {
		return 0, false, errors.New("db down")
	})
	if err == nil || novel {
		t.Fatalf("Expected error and not novel, got novel=%v err=%v", novel, err)
	}
	if d.Seen(GlobalScope, k) {
		t.Fatal("Key must stay unseen after failed commit")
	}

	id, novel, err := d.Admit(GlobalScope, k, func() (uint, bool, error) { return 42, true, nil })
	if err != nil || !novel || id != 42 {
		t.Errorf("Retry should commit: id=%d novel=%v err=%v", id, novel, err)
	}
}

func TestAdmitSeeded(t *testing.T) {
	d := New()
	k := Key{URL: "https://olx.ua/d/item-3", Marketplace: "olx"}
	d.Seed(GlobalScope, k, 7)

	called := false
	id, novel, err := d.Admit(GlobalScope, k, func() (uint, bool, error) {
		called = true
		return 99, true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("Commit must not run for a seeded key")
	}
	if novel || id != 7 {
		t.Errorf("Expected seeded id 7 and not novel, got id=%d novel=%v", id, novel)
	}
}

func TestAdmitConcurrentCommitsOnce(t *testing.T) {
	d := New()
	k := Key{URL: "https://olx.ua/d/item-4", Marketplace: "olx"}

	var commits atomic.Int32
	var novels atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, novel, err := d.Admit(GlobalScope, k, func() (uint, bool, error) {
				commits.Add(1)
				time.Sleep(5 * time.Millisecond)
				return 11, true, nil
			})
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if id != 11 {
				t.Errorf("Expected id 11, got %d", id)
			}
			if novel {
				novels.Add(1)
			}
		}()
	}
	wg.Wait()

	if commits.Load() != 1 {
		t.Errorf("Expected exactly one commit, got %d", commits.Load())
	}
	if novels.Load() != 1 {
		t.Errorf("Expected exactly one novel result, got %d", novels.Load())
	}
}

func TestAdmitExistingRowIsNotNovel(t *testing.T) {
	d := New()
	k := Key{URL: "https://olx.ua/d/item-5", Marketplace: "olx"}

	id, novel, err := d.Admit(GlobalScope, k, func() (uint, bool, error) { return 3, false, nil })
	if err != nil || novel || id != 3 {
		t.Errorf("Existing row: id=%d novel=%v err=%v", id, novel, err)
	}
	if !d.Seen(GlobalScope, k) {
		t.Error("Key should be settled after a successful commit")
	}
}

func TestDrop(t *testing.T) {
	d := New()
	k := Key{URL: "https://olx.ua/d/item-6", Marketplace: "olx"}
	d.IsNovel("m1", k)

	d.Drop("m1")

	if d.Len("m1") != 0 {
		t.Error("Dropped scope should be empty")
	}
	if !d.IsNovel("m1", k) {
		t.Error("Key should be novel again after drop")
	}
}
