package storage

import (
	"testing"

	"github.com/thermolog/pkg/types"
)

func TestJournalAppendAndReplay(t *testing.T) {
	tmpDir := t.TempDir()

	journal, err := NewJournal(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}

	want := []types.Reading{
		{Timestamp: 1709298000, Temperature: 0x7AF2E, Humidity: 0xD8E24},
		{Timestamp: 1709384400, Temperature: 0x7EB95, Humidity: 0xD9669},
		{Timestamp: 1709384400, Temperature: 0x7EB95, Humidity: 0xD9669}, // duplicate
	}
	for _, r := range want {
		if err := journal.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := journal.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var got []types.Reading
	err = ReplayJournal(tmpDir, func(r types.Reading) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Replayed %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Replay keeps the files: a second replay sees the same entries.
	count := 0
	if err := ReplayJournal(tmpDir, func(types.Reading) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Second replay failed: %v", err)
	}
	if count != len(want) {
		t.Errorf("Second replay saw %d entries, want %d", count, len(want))
	}

	// RemoveJournal makes them disappear.
	RemoveJournal(tmpDir)
	count = 0
	if err := ReplayJournal(tmpDir, func(types.Reading) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Replay after remove failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Replay after remove saw %d entries", count)
	}
}

func TestJournalReplayMissingDirectory(t *testing.T) {
	// No journal was ever written; replay is a no-op.
	err := ReplayJournal(t.TempDir(), func(types.Reading) error {
		t.Error("handler called with no journal present")
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
}
