// Package tasks orchestrates study plan generation with real-time progress reporting.
//
// # Core Operations
//
// The [Engine] interface defines the workflows:
//
//  1. [Engine.GenerateDay] : (Re)generate a single day
//     - Requests generation from the server
//     - Follows the returned job with a [jobs.Monitor] (stream first, polling fallback)
//     - Reloads the plan once the job succeeds
//
//  2. [Engine.ExtendSection] and [Engine.ExtendDay] : Add tasks to a plan section
//     - The server may answer with the new tasks directly or with a job to follow
//
//  3. [Engine.WatchPlan] : Resume monitoring a plan that is still being generated ([PlanRequiresJob])
//
//  4. [Engine.BulkGenerate] : Regenerate many days with a rate-limited worker pool
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data (the [jobs.State] while monitoring).
//
// # Job History
//
// The optional [JobRecorder] (repositories.JobRepository) receives every job state change.
// Recording errors are logged and never interrupt generation.
package tasks
