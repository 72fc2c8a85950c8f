package jobstore

import (
	"database/sql"
	"errors"
	"time"

	"opgrid/internal/lifecycle"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*lifecycle.JobRecord, error) {
	var (
		id           string
		session      sql.NullString
		marker       sql.NullString
		operator     string
		user         sql.NullString
		role         sql.NullString
		status       int
		descriptor   string
		errorMessage sql.NullString
		groupSize    int
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id,
		&session,
		&marker,
		&operator,
		&user,
		&role,
		&status,
		&descriptor,
		&errorMessage,
		&groupSize,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &lifecycle.JobRecord{
		ID:         id,
		Session:    session.String,
		Marker:     marker.String,
		Operator:   operator,
		User:       user.String,
		Role:       role.String,
		Status:     lifecycle.Status(status),
		Descriptor: descriptor,
		Error:      errorMessage.String,
		GroupSize:  groupSize,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
