package storage

import (
	"testing"
	"time"
)

func TestCleanupReportPathPartitionsByUTCDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	startedAt := time.Date(2025, 3, 1, 2, 30, 0, 0, tokyo)

	path, err := CleanupReportPath("01JNRUN", startedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "cart-cleanups/2025/02/28/01JNRUN.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestCleanupReportPathRejectsInvalidInput(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		runID string
		at    time.Time
	}{
		"empty run":  {runID: " ", at: now},
		"slash":      {runID: "a/b", at: now},
		"traversal":  {runID: "..run", at: now},
		"zero start": {runID: "run", at: time.Time{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := CleanupReportPath(tc.runID, tc.at); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
