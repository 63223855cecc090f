package storage

import (
	"fmt"
	"strings"
	"time"
)

const cleanupReportPrefix = "cart-cleanups"

// CleanupReportPath composes the object key of a sweep report, partitioned by the UTC day the
// sweep started on.
func CleanupReportPath(runID string, startedAt time.Time) (string, error) {
	id, err := validateSegment("runID", runID)
	if err != nil {
		return "", err
	}
	if startedAt.IsZero() {
		return "", fmt.Errorf("storage: startedAt is required")
	}
	day := startedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", cleanupReportPrefix, day.Year(), int(day.Month()), day.Day(), id), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
