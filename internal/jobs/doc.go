// Package jobs follows long-running server jobs until they succeed or fail.
//
// A [Monitor] subscribes to the job's status stream when it can and degrades to polling the
// status endpoint when the stream is unavailable or ends early. Whatever the transport, a job
// reaches exactly one terminal state, and reaching it stops every transport.
package jobs
