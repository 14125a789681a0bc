package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryHistory_RecentNewestFirst(t *testing.T) {
	h := NewMemoryHistory(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := h.Record(ctx, HistoryEntry{ID: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := h.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var ids string
	for _, e := range got {
		ids += e.ID
	}
	if ids != "432" {
		t.Errorf("Recent ids = %q, want %q", ids, "432")
	}

	got, _ = h.Recent(ctx, 1)
	if len(got) != 1 || got[0].ID != "4" {
		t.Errorf("Recent(1) = %+v", got)
	}
}

func TestMemoryHistory_PurgeOlderThan(t *testing.T) {
	h := NewMemoryHistory(4)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		_ = h.Record(ctx, HistoryEntry{ID: fmt.Sprint(i), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	removed, err := h.PurgeOlderThan(ctx, base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	got, _ := h.Recent(ctx, 10)
	if len(got) != 2 || got[0].ID != "5" || got[1].ID != "4" {
		t.Errorf("Recent after purge = %+v", got)
	}

	_ = h.Record(ctx, HistoryEntry{ID: "6"})
	got, _ = h.Recent(ctx, 10)
	if len(got) != 3 || got[0].ID != "6" {
		t.Errorf("Recent after new record = %+v", got)
	}
}

func TestParseIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.1", "10.0.0.1"},
		{"10.0.0.1:5432", "10.0.0.1"},
		{"[::1]:80", "::1"},
		{"not-an-ip", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := parseIP(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("parseIP(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || got.String() != tt.want {
			t.Errorf("parseIP(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPgUUIDRoundTrip(t *testing.T) {
	const id = "0b6f0f3e-2d7a-4d3c-9a57-3f2d1c0b9e11"
	if got := pgUUIDToString(toPgUUID(id)); got != id {
		t.Errorf("round trip = %q, want %q", got, id)
	}
	if toPgUUID("bogus").Valid {
		t.Error("toPgUUID(bogus) should be invalid")
	}
}
