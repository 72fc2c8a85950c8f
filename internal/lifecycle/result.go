package lifecycle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"opgrid/internal/fileutil"
)

// ResultDocument is the leader's JSON summary of a finished job. It doubles as
// the notification payload.
type ResultDocument struct {
	JobID         string              `json:"job_id"`
	Operator      string              `json:"operator"`
	Schema        string              `json:"schema,omitempty"`
	SchemaVersion string              `json:"schema_version,omitempty"`
	Session       string              `json:"session,omitempty"`
	Marker        string              `json:"marker,omitempty"`
	User          string              `json:"user,omitempty"`
	Role          string              `json:"role,omitempty"`
	Status        string              `json:"status"`
	StatusCode    int                 `json:"status_code"`
	FailedPhase   string              `json:"failed_phase,omitempty"`
	FailedRank    *int                `json:"failed_rank,omitempty"`
	Error         string              `json:"error,omitempty"`
	GroupSize     int                 `json:"group_size"`
	Parameters    map[string][]string `json:"parameters"`
	Warnings      []string            `json:"warnings,omitempty"`
	Result        any                 `json:"result,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
}

func buildResultDocument(sub Submission, jobID string, size int, status Status, failure *PhaseError, result any, started, finished time.Time) ResultDocument {
	d := sub.Descriptor
	doc := ResultDocument{
		JobID:      jobID,
		Operator:   d.Operator(),
		Schema:     sub.Schema.Source,
		Session:    d.Session(),
		Marker:     d.Marker(),
		User:       d.User(),
		Role:       d.Role(),
		Status:     status.String(),
		StatusCode: int(status),
		GroupSize:  size,
		Parameters: sub.Params.Map(),
		Result:     result,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if len(sub.Schema.Version) > 0 {
		doc.SchemaVersion = sub.Schema.Version.String()
	}
	for _, w := range sub.Params.Warnings() {
		doc.Warnings = append(doc.Warnings, w.String())
	}
	if failure != nil {
		phase, rank := failure.Phase, failure.Rank
		if failure.Remote() {
			if p, r, ok := remotePhase(failure.Err); ok {
				phase, rank = p, r
			}
		}
		doc.FailedPhase = phase.String()
		doc.FailedRank = &rank
		doc.Error = failure.Err.Error()
	}
	return doc
}

// Encode renders the document as indented JSON.
func (d ResultDocument) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result document: %w", err)
	}
	return append(data, '\n'), nil
}

// ResultPath returns where the document for jobID lives under dir.
func ResultPath(dir, jobID string) string {
	return filepath.Join(dir, jobID+".json")
}

func writeResultDocument(dir string, doc ResultDocument) (string, error) {
	data, err := doc.Encode()
	if err != nil {
		return "", err
	}
	path := ResultPath(dir, doc.JobID)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write result document: %w", err)
	}
	return path, nil
}
