package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"refundledger/core/events"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	j, err := New(db, nil)
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	return j
}

func TestJournalAppendAndFilter(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	j.Emit(events.Record{Type: "refund.deposited", Attrs: map[string]string{"participant": "rfd1alice", "committed": "5000000000"}})
	j.Emit(events.Record{Type: "refund.deposited", Attrs: map[string]string{"participant": "rfd1bob"}})
	j.Emit(events.Record{Type: "refund.claimed", Attrs: map[string]string{"participant": "rfd1alice", "amountMinor": "10"}})

	all, err := j.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i, entry := range all {
		if entry.Seq != int64(i+1) {
			t.Fatalf("entry %d has seq %d", i, entry.Seq)
		}
	}

	alice, err := j.List(ctx, Filter{Participant: "rfd1alice"})
	if err != nil {
		t.Fatalf("list participant: %v", err)
	}
	if len(alice) != 2 || alice[1].Type != "refund.claimed" {
		t.Fatalf("unexpected participant entries %+v", alice)
	}
	if alice[1].Attrs()["amountMinor"] != "10" {
		t.Fatalf("attributes not preserved: %v", alice[1].Attrs())
	}

	deposits, err := j.List(ctx, Filter{Type: "refund.deposited", Limit: 1})
	if err != nil {
		t.Fatalf("list type: %v", err)
	}
	if len(deposits) != 1 || deposits[0].Participant != "rfd1alice" {
		t.Fatalf("unexpected deposits %+v", deposits)
	}

	future, err := j.List(ctx, Filter{Since: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(future) != 0 {
		t.Fatalf("expected no future entries, got %d", len(future))
	}
}

func TestJournalResumesSequence(t *testing.T) {
	j := setupJournal(t)
	j.Emit(events.Record{Type: "refund.price_updated", Attrs: map[string]string{"price": "10"}})

	reopened, err := New(j.db, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Emit(events.Record{Type: "refund.price_updated", Attrs: map[string]string{"price": "11"}})
	entries, err := reopened.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[1].Seq != 2 {
		t.Fatalf("sequence did not resume: %+v", entries)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected empty dsn to fail")
	}
}
