// Package api provides an HTTP client for the columns/posts publishing API.
//
// # Overview
//
// Every endpoint answers with the same envelope:
//
//	{"code": 0, "msg": "...", "data": ...}
//
// data is a single entity, a paginated {list, count, currentPage} page, or a
// call specific payload such as {token} for /user/login. Failed calls answer
// with a non-2xx status and an {"error": "..."} body; Client.Call turns those
// into *RemoteError carrying the server's message unchanged.
//
// # Request stamping
//
// The client applies the transport plumbing the rest of the module assumes:
//
//   - the partner code (icode) is added to the query string of every request
//     and merged into JSON object bodies and multipart forms
//   - after SetToken every request carries Authorization: Bearer <token>
//     until ClearToken
//   - every request carries X-Request-ID, Accept and User-Agent headers
//
// # Lifecycle hooks
//
// An Observer sees RequestStarted before the call and exactly one of
// RequestSucceeded or RequestFailed afterwards. The state store uses this to
// maintain its global loading and error fields. A Recorder receives method,
// route, status and latency for metrics. Each call is wrapped in an
// OpenTelemetry client span.
//
// # Design Rationale
//
// The client never retries and never caches. Whether a call is needed at all
// is decided by the actions package, which consults the state store first.
package api
