package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report statuses. New reports start pending; moderators move them to
// resolved or dismissed.
const (
	ReportStatusPending   = "pending"
	ReportStatusResolved  = "resolved"
	ReportStatusDismissed = "dismissed"
)

// ErrEmptyReason rejects a report without a stated reason.
var ErrEmptyReason = errors.New("store: report reason is empty")

// Report is a user's complaint about another profile.
type Report struct {
	ID                string    `json:"_id"`
	ReporterID        string    `json:"reporterId"`
	ReportedProfileID string    `json:"reportedProfileId"`
	Reason            string    `json:"reason"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CreateReport persists a report against a profile. The reason is free
// text but must be non-empty.
func (s *Store) CreateReport(ctx context.Context, reporterID, profileID, reason string) (*Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}

	r := &Report{
		ID:                uuid.New().String(),
		ReporterID:        reporterID,
		ReportedProfileID: profileID,
		Reason:            reason,
		Status:            ReportStatusPending,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO reports (id, reporter_id, reported_profile_id, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		r.ID, r.ReporterID, r.ReportedProfileID, r.Reason).Scan(&r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create report: %w", err)
	}
	return r, nil
}

// UpdateReportStatus transitions a report to resolved or dismissed.
func (s *Store) UpdateReportStatus(ctx context.Context, reportID, status string) error {
	if status != ReportStatusResolved && status != ReportStatusDismissed {
		return fmt.Errorf("store: invalid report status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $1 WHERE id = $2`, status, reportID)
	if err != nil {
		return fmt.Errorf("store: update report status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingReports returns unhandled reports oldest first, for review.
func (s *Store) ListPendingReports(ctx context.Context, limit int) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reporter_id, reported_profile_id, reason, status, created_at
		 FROM reports WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`, ReportStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list pending reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.ReporterID, &r.ReportedProfileID,
			&r.Reason, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
