package lifecycle

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"opgrid/internal/logging"
)

// LookupRecordSize is the encoded size of a LookupRecord.
const LookupRecordSize = 16

// ErrLeaderRejected is returned on every rank when the leader's lookup
// produced the zero-ID sentinel.
var ErrLeaderRejected = errors.New("leader rejected lookup")

// LookupRecord is the fixed-layout result of a leader-only lookup. An ID of
// zero is the failure sentinel.
type LookupRecord struct {
	ID  uint64
	Aux uint64
}

// Rejected reports whether r is the sentinel.
func (r LookupRecord) Rejected() bool {
	return r.ID == 0
}

// MarshalBinary encodes r as two big-endian uint64 values.
func (r LookupRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, LookupRecordSize)
	binary.BigEndian.PutUint64(buf[0:8], r.ID)
	binary.BigEndian.PutUint64(buf[8:16], r.Aux)
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (r *LookupRecord) UnmarshalBinary(data []byte) error {
	if len(data) != LookupRecordSize {
		return fmt.Errorf("lookup record: want %d bytes, got %d", LookupRecordSize, len(data))
	}
	r.ID = binary.BigEndian.Uint64(data[0:8])
	r.Aux = binary.BigEndian.Uint64(data[8:16])
	return nil
}

// LookupFunc performs an authoritative lookup. It only ever runs on the
// leader.
type LookupFunc func(ctx context.Context) (LookupRecord, error)

// leaderLookup runs lookup on the leader, broadcasts the record and makes
// every rank reach the same verdict. A lookup error on the leader is
// reported to the group as the sentinel; followers never see the error text,
// only ErrLeaderRejected.
func leaderLookup(ctx context.Context, rc *RankContext, lookup LookupFunc) (LookupRecord, error) {
	logger := rc.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var payload []byte
	if rc.IsLeader() {
		rec, err := lookup(ctx)
		if err != nil {
			logging.WarnWithContext(logger, "leader lookup failed", "leader_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "every rank fails the current phase"),
				logging.String(logging.FieldErrorHint, "check the resource identifier and permissions"),
			)
			rec = LookupRecord{}
		}
		if rec.Rejected() {
			rc.metrics.LeaderRejected()
		}
		payload, _ = rec.MarshalBinary()
	}

	shared, err := rc.Comm.Broadcast(ctx, payload)
	if err != nil {
		return LookupRecord{}, fmt.Errorf("leader lookup broadcast: %w", err)
	}
	var rec LookupRecord
	if err := rec.UnmarshalBinary(shared); err != nil {
		return LookupRecord{}, err
	}
	if rec.Rejected() {
		return LookupRecord{}, ErrLeaderRejected
	}
	return rec, nil
}
