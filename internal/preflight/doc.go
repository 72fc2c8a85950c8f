// Package preflight provides readiness checks for the schema registry, local
// state and the external services opgrid talks to.
//
// These checks run in two contexts:
//   - "opgrid doctor" runs RunAll and renders every result.
//   - "opgrid run" runs RunAll on the leader before the group starts and
//     refuses to start when a required check fails.
//
// Checks for optional features are skipped when the feature is not configured.
package preflight
