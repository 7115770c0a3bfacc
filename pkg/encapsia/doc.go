// Package encapsia is a client for the Encapsia server REST API (v1).
//
// A Client wraps the session-token endpoints of a single server: login and
// token management, blob upload/download, tasks, jobs, views, database
// control actions, replication, server configuration, and user management.
//
// Requests against idempotent endpoints are retried on transient failures
// with jittered exponential backoff; see the retry policy on Client for the
// exact classification. Blob and file transfers are streamed end to end so
// payload size never dictates memory use.
package encapsia

// Version is the client library version, sent in the User-Agent header.
const Version = "0.1.13"
