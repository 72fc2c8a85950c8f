package group

// JoinRequest registers a follower with the coordinator.
type JoinRequest struct {
	Rank int `json:"rank"`
	Size int `json:"size"`
}

// JoinResponse confirms membership.
type JoinResponse struct {
	Size int `json:"size"`
}

// FetchRequest asks for the payload of broadcast number Seq.
type FetchRequest struct {
	Rank int    `json:"rank"`
	Seq  uint64 `json:"seq"`
}

// FetchResponse carries a broadcast payload, or the abort that prevented it.
type FetchResponse struct {
	Payload []byte       `json:"payload,omitempty"`
	Abort   *AbortNotice `json:"abort,omitempty"`
}

// BarrierRequest enters barrier generation Generation.
type BarrierRequest struct {
	Rank       int    `json:"rank"`
	Generation uint64 `json:"generation"`
}

// BarrierResponse returns once the barrier released or the group aborted.
type BarrierResponse struct {
	Abort *AbortNotice `json:"abort,omitempty"`
}

// AbortRequest marks the group failed on behalf of Rank.
type AbortRequest struct {
	Rank  int    `json:"rank"`
	Cause string `json:"cause"`
}

// AbortResponse reports the effective abort, which may come from an earlier
// rank.
type AbortResponse struct {
	Abort *AbortNotice `json:"abort,omitempty"`
}

// FinishRequest checks Rank out of the group after its lifecycle ended.
type FinishRequest struct {
	Rank int `json:"rank"`
}

// FinishResponse acknowledges a check-out.
type FinishResponse struct{}

// AbortNotice is the wire form of AbortError.
type AbortNotice struct {
	Rank  int    `json:"rank"`
	Cause string `json:"cause"`
}

func noticeFrom(err *AbortError) *AbortNotice {
	if err == nil {
		return nil
	}
	return &AbortNotice{Rank: err.Rank, Cause: err.Cause}
}

func (n *AbortNotice) err() error {
	if n == nil {
		return nil
	}
	return &AbortError{Rank: n.Rank, Cause: n.Cause}
}
