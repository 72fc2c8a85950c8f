// Package group provides the collective primitives ranks use to coordinate a
// job: a one-to-all broadcast rooted at rank 0, a barrier, and a group-wide
// abort that releases every rank blocked in a collective.
//
// Two implementations share one in-memory hub. Local connects goroutine
// ranks inside one process. The gRPC implementation hosts the hub on rank 0
// (Coordinator) and lets follower processes reach it through Client.
package group
