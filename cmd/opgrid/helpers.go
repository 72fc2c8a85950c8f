package main

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"opgrid/internal/lifecycle"
)

var titleCaser = cases.Title(language.English)

// statusLabel renders a status code for people: DISTRIBUTE_ERROR becomes
// "Distribute Error".
func statusLabel(status lifecycle.Status) string {
	if !status.Valid() {
		return status.String()
	}
	words := strings.ReplaceAll(strings.ToLower(status.String()), "_", " ")
	return titleCaser.String(words)
}

func statusPath(path []lifecycle.Status) string {
	parts := make([]string, 0, len(path))
	for _, s := range path {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " → ")
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
