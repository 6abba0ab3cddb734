package feed

import (
	"testing"
	"time"

	"plant-diagnostics-web/pkg/predict"
)

func TestRecentNewestFirst(t *testing.T) {
	s := NewStore(time.Minute)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"Tomato", "Strawberry", "Apple"} {
		s.Add(predict.FeedEntry{
			PlantName:   name,
			PredictedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	got := s.Recent(0)
	if len(got) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(got))
	}
	want := []string{"Apple", "Strawberry", "Tomato"}
	for i := range want {
		if got[i].PlantName != want[i] {
			t.Errorf("Recent[%d] = %q, want %q", i, got[i].PlantName, want[i])
		}
	}
}

func TestRecentLimit(t *testing.T) {
	s := NewStore(time.Minute)
	for i := 0; i < 10; i++ {
		s.Add(predict.FeedEntry{PlantName: "Tomato"})
	}
	if got := len(s.Recent(4)); got != 4 {
		t.Errorf("Recent(4) returned %d entries", got)
	}
}

func TestAddStampsMissingTime(t *testing.T) {
	s := NewStore(time.Minute)
	s.Add(predict.FeedEntry{PlantName: "Basil"})
	got := s.Recent(1)
	if len(got) != 1 {
		t.Fatalf("Recent returned %d entries, want 1", len(got))
	}
	if got[0].PredictedAt.IsZero() {
		t.Error("Add must stamp entries that carry no time")
	}
}

func TestEntriesExpire(t *testing.T) {
	s := NewStore(20 * time.Millisecond)
	s.Add(predict.FeedEntry{PlantName: "Tomato"})
	time.Sleep(50 * time.Millisecond)
	if got := len(s.Recent(0)); got != 0 {
		t.Errorf("expected expired feed, got %d entries", got)
	}
}
