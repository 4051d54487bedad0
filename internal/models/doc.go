// Package models defines wire types and persisted entities for the study-planning client.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): structs decoded from or sent to the backend API
//   - [ChatMessage], [ChatRequest], [ChatReply] : Chat turns
//   - [JobStatusResponse] : Background job status as reported by the server
//   - [StudyPlanSummary], [StudyPlan], [StudyWeek], [StudyDay], [StudyTask] : Generated study plans
//   - [UserRead], [LoginRequest], [LoginResponse] : Session endpoints
//
// 2. Persistent Entities: database-backed models stored locally
//   - [Conversation] : A saved chat transcript with its ordered messages
//   - [JobRecord] : Last known state of a monitored job
//
// All persistent entities implement the Model interface providing ID, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
