// Package notifications delivers job status messages on behalf of the leader.
//
// A Message carries a descriptor-shaped status line plus an opaque payload
// (normally the JSON result document). The HTTP implementation posts the
// payload as the request body with the status line in a header, in the
// style of ntfy topics; when no endpoint is configured a no-op service is
// returned so lifecycle code never has to branch on configuration.
//
// Delivery is fire-and-forget from the job's point of view: callers log a
// failed Publish but never let it change the job outcome.
package notifications
