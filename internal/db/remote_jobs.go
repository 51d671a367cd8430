package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordRemoteJob logs a submission to an EBI tool. Recording the same job twice
// is a no-op.
func (db *DB) RecordRemoteJob(ctx context.Context, tool, externalID, parentID string) error {
	var parent *string
	if parentID != "" {
		parent = &parentID
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO remote_jobs (id, tool, external_id, parent_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tool, external_id) DO NOTHING`,
		uuid.New(), tool, externalID, parent,
	)
	if err != nil {
		return fmt.Errorf("failed to record remote job %s: %w", externalID, err)
	}
	return nil
}

// ListRemoteJobs retrieves logged submissions, newest first
func (db *DB) ListRemoteJobs(ctx context.Context, filters RemoteJobFilters) ([]RemoteJob, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	query := `SELECT id, tool, external_id, parent_id, submitted_at FROM remote_jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Tool != "" {
		query += fmt.Sprintf(" AND tool = $%d", argNum)
		args = append(args, filters.Tool)
		argNum++
	}
	if filters.ParentID != "" {
		query += fmt.Sprintf(" AND parent_id = $%d", argNum)
		args = append(args, filters.ParentID)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote jobs: %w", err)
	}
	defer rows.Close()

	var jobs []RemoteJob
	for rows.Next() {
		var job RemoteJob
		if err := rows.Scan(&job.ID, &job.Tool, &job.ExternalID, &job.ParentID, &job.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan remote job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListOrphanedAlignments returns alignment jobs that never got a tree job.
// Direct Clustal Omega submissions are included; they have no continuation either.
func (db *DB) ListOrphanedAlignments(ctx context.Context, tool string, limit int) ([]RemoteJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT a.id, a.tool, a.external_id, a.parent_id, a.submitted_at
		 FROM remote_jobs a
		 WHERE a.tool = $1
		   AND NOT EXISTS (SELECT 1 FROM remote_jobs t WHERE t.parent_id = a.external_id)
		 ORDER BY a.submitted_at DESC
		 LIMIT $2`,
		tool, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned alignments: %w", err)
	}
	defer rows.Close()

	var jobs []RemoteJob
	for rows.Next() {
		var job RemoteJob
		if err := rows.Scan(&job.ID, &job.Tool, &job.ExternalID, &job.ParentID, &job.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan remote job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
