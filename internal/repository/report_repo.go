package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reporthub-backend/internal/models"
)

var ErrNotFound = errors.New("report not found")

// ReportRepo stores finished documents saved out of live sessions.
type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// Save upserts the document for (session, user). Saving the same
// session again overwrites the previous copy.
func (r *ReportRepo) Save(ctx context.Context, report *models.SavedReport) error {
	if len(report.Document) == 0 {
		report.Document = json.RawMessage("{}")
	}

	query := `
		INSERT INTO saved_reports (session_id, user_id, title, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET title = EXCLUDED.title,
			document = EXCLUDED.document,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	return r.pool.QueryRow(ctx, query, report.SessionID, report.UserID, report.Title, report.Document).Scan(
		&report.ID,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
}

func (r *ReportRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.SavedReport, error) {
	query := `
		SELECT id, session_id, user_id, title, document, created_at, updated_at
		FROM saved_reports
		WHERE id = $1
	`

	var report models.SavedReport
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&report.ID,
		&report.SessionID,
		&report.UserID,
		&report.Title,
		&report.Document,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.SavedReport, error) {
	query := `
		SELECT id, session_id, user_id, title, document, created_at, updated_at
		FROM saved_reports
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.SavedReport
	for rows.Next() {
		var report models.SavedReport
		if err := rows.Scan(
			&report.ID,
			&report.SessionID,
			&report.UserID,
			&report.Title,
			&report.Document,
			&report.CreatedAt,
			&report.UpdatedAt,
		); err != nil {
			return nil, err
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}
