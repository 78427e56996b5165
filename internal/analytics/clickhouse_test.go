package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"market-hunter/internal/monitor"
)

type fakeConn struct {
	execs   []string
	inserts [][]any
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeConn) AsyncInsert(_ context.Context, _ string, _ bool, args ...any) error {
	c.inserts = append(c.inserts, args)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func TestCreateTable(t *testing.T) {
	c := &fakeConn{}
	j := &ClickHouseJournal{conn: c}
	if err := j.createTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(c.execs) != 1 || !strings.Contains(c.execs[0], "monitor_ticks") {
		t.Errorf("Unexpected DDL: %v", c.execs)
	}
}

func TestRecordTick(t *testing.T) {
	c := &fakeConn{}
	j := &ClickHouseJournal{conn: c}

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := j.RecordTick(context.Background(), monitor.TickReport{
		MonitorID:  "m-1",
		OwnerID:    3,
		Reason:     "timer",
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
		Candidates: 10,
		Matched:    4,
		NewLinks:   2,
		Broadcast:  true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(c.inserts) != 1 {
		t.Fatalf("Expected 1 insert, got %d", len(c.inserts))
	}
	args := c.inserts[0]
	if len(args) != 13 {
		t.Fatalf("Expected 13 columns, got %d", len(args))
	}
	if args[0] != "m-1" || args[1] != uint64(3) || args[3] != started {
		t.Errorf("Unexpected leading columns: %v", args[:4])
	}
	if args[4] != uint32(1500) {
		t.Errorf("Expected duration 1500ms, got %v", args[4])
	}
	if args[11] != uint8(1) || args[12] != uint8(0) {
		t.Errorf("Unexpected flags: broadcast=%v discarded=%v", args[11], args[12])
	}
}
