// Package repositories implements SQLite persistence for saved chats and job history.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [ConversationRepository] : chat transcripts with ordered messages
//   - [JobRepository] : last known state of monitored background jobs, keyed by job id
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
