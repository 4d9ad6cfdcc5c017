package storage

import (
	"fmt"
	"strings"
	"time"
)

const defaultReportPrefix = "reports/orders"

// ReportPath composes prefix/YYYY/MM/DD/<exportID>.jsonl for an export created at `at`.
func ReportPath(prefix string, at time.Time, exportID string) (string, error) {
	id, err := validateSegment("exportID", exportID)
	if err != nil {
		return "", err
	}
	prefix, err = reportPrefix(prefix)
	if err != nil {
		return "", err
	}
	return joinReportPath(prefix, at, id), nil
}

// ReportPathFunc validates prefix and binds it for the report service. Invalid ids fall back to
// a sanitised name.
func ReportPathFunc(prefix string) (func(time.Time, string) string, error) {
	prefix, err := reportPrefix(prefix)
	if err != nil {
		return nil, err
	}
	return func(at time.Time, exportID string) string {
		id, err := validateSegment("exportID", exportID)
		if err != nil {
			id = sanitizeSegment(exportID)
		}
		return joinReportPath(prefix, at, id)
	}, nil
}

func reportPrefix(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return defaultReportPrefix, nil
	}
	for _, segment := range strings.Split(prefix, "/") {
		if _, err := validateSegment("prefix", segment); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

func joinReportPath(prefix string, at time.Time, id string) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", prefix, at.UTC().Format("2006/01/02"), id)
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

func sanitizeSegment(value string) string {
	value = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(strings.TrimSpace(value))
	if value == "" {
		return "export"
	}
	return value
}
