package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

const jobColumns = `id, sequence, job_id, kind, status, message, error, result, created_at, updated_at, deleted_at`

// JobRepository implements models.Repository[*models.JobRecord] for job history.
//
// Records are unique per server job id; [JobRepository.Upsert] keeps the latest observed state.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record with generated ID and sequence
func (r *JobRepository) Create(job *models.JobRecord) error {
	sequence, err := NextSequence(r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	job.SetID(id)
	job.SetSequence(sequence)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO jobs (id, sequence, job_id, kind, status, message, error, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		job.JobID(),
		job.Kind(),
		string(job.Status()),
		job.Message(),
		job.ErrorMessage(),
		string(job.Result()),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job record by ID, excluding soft-deleted records
func (r *JobRepository) Get(id string) (*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByJobID retrieves a job record by the server's job id
func (r *JobRepository) GetByJobID(jobID string) (*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, jobID))
}

// Update modifies the state of an existing job record
func (r *JobRepository) Update(job *models.JobRecord) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE jobs
		SET kind = ?, status = ?, message = ?, error = ?, result = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		job.Kind(),
		string(job.Status()),
		job.Message(),
		job.ErrorMessage(),
		string(job.Result()),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return expectRow(result, shared.ErrJobNotFound, job.ID())
}

// Upsert stores job under its job id, creating the record or overwriting the state of an existing one.
// An empty kind keeps the stored kind.
func (r *JobRepository) Upsert(job *models.JobRecord) error {
	existing, err := r.GetByJobID(job.JobID())
	if errors.Is(err, shared.ErrJobNotFound) {
		return r.Create(job)
	}
	if err != nil {
		return err
	}

	job.SetID(existing.ID())
	job.SetSequence(existing.Sequence())
	job.SetCreatedAt(existing.CreatedAt())
	if job.Kind() == "" {
		job.SetKind(existing.Kind())
	}
	return r.Update(job)
}

// Delete soft-deletes a job record by ID
func (r *JobRepository) Delete(id string) error {
	query := `
		UPDATE jobs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return expectRow(result, shared.ErrJobNotFound, id)
}

// List retrieves job records matching the given criteria, most recent first.
//
// Supported criteria: "status" (string or [models.JobStatus]), "kind" (string) and "limit" (int).
func (r *JobRepository) List(criteria map[string]any) ([]*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE deleted_at IS NULL`
	args := []any{}

	switch status := criteria["status"].(type) {
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	case models.JobStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	}

	if kind, ok := criteria["kind"].(string); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobRecord
	for rows.Next() {
		job, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

func (r *JobRepository) scan(row scanner) (*models.JobRecord, error) {
	var (
		id        string
		sequence  int
		jobID     string
		kind      string
		status    string
		message   string
		errMsg    string
		result    string
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(&id, &sequence, &jobID, &kind, &status, &message, &errMsg, &result, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job := models.NewJobRecord(sequence, jobID, kind)
	job.SetID(id)
	job.SetStatus(models.JobStatus(status))
	job.SetMessage(message)
	job.SetError(errMsg)
	if result != "" {
		job.SetResult(json.RawMessage(result))
	}
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		job.SetDeletedAt(&deletedAt.Time)
	}

	return job, nil
}
