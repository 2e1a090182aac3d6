package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/david/pimm/internal/models"
)

const trackingCols = "id, nid, status, added_date, added_by, notes, updated"

func scanTracking(scan func(dest ...any) error) (models.TrackingEntry, error) {
	var e models.TrackingEntry
	var status string
	err := scan(&e.ID, &e.ProjectID, &status, &e.AddedDate, &e.AddedBy, &e.Notes, &e.Updated)
	e.Status = models.TrackingStatus(status)
	return e, err
}

// InsertTracking writes the entry inside its own transaction.
func (s *Store) InsertTracking(ctx context.Context, e *models.TrackingEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO pimm_tracked_projects (nid, status, added_date, added_by, notes)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, e.ProjectID, string(e.Status), e.AddedDate, e.AddedBy, e.Notes).Scan(&e.ID)
		return wrapErr("insert tracking", err)
	})
}

func (s *Store) GetTracking(ctx context.Context, nid int64) (*models.TrackingEntry, error) {
	e, err := scanTracking(s.pool.QueryRow(ctx, "SELECT "+trackingCols+" FROM pimm_tracked_projects WHERE nid = $1", nid).Scan)
	if err != nil {
		return nil, wrapErr("get tracking", err)
	}
	return &e, nil
}

func (s *Store) UpdateTracking(ctx context.Context, nid int64, status models.TrackingStatus, notes *string, updated time.Time) error {
	var tag pgconn.CommandTag
	var err error
	if notes != nil {
		tag, err = s.pool.Exec(ctx, "UPDATE pimm_tracked_projects SET status = $2, notes = $3, updated = $4 WHERE nid = $1", nid, string(status), *notes, updated)
	} else {
		tag, err = s.pool.Exec(ctx, "UPDATE pimm_tracked_projects SET status = $2, updated = $3 WHERE nid = $1", nid, string(status), updated)
	}
	if err != nil {
		return wrapErr("update tracking", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tracking %d: %w", nid, ErrNotFound)
	}
	return nil
}

// DeleteTracking removes the entry inside its own transaction.
func (s *Store) DeleteTracking(ctx context.Context, nid int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM pimm_tracked_projects WHERE nid = $1", nid)
		if err != nil {
			return wrapErr("delete tracking", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delete tracking %d: %w", nid, ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ListTracking(ctx context.Context, q TrackingQuery) ([]models.TrackingEntry, error) {
	col, asc := q.orderBy()
	dir := "DESC"
	if asc {
		dir = "ASC"
	}

	sql := "SELECT " + trackingCols + " FROM pimm_tracked_projects"
	var args []any
	if q.Status != "" {
		sql += " WHERE status = $1"
		args = append(args, string(q.Status))
	}
	sql += fmt.Sprintf(" ORDER BY %s %s NULLS LAST, id %s", col, dir, dir)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr("list tracking", err)
	}
	defer rows.Close()

	var out []models.TrackingEntry
	for rows.Next() {
		e, err := scanTracking(rows.Scan)
		if err != nil {
			return nil, wrapErr("scan tracking", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) TrackedProjectIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, "SELECT nid FROM pimm_tracked_projects ORDER BY nid")
}

func (s *Store) CountTracking(ctx context.Context, status models.TrackingStatus) (int, error) {
	var n int
	var err error
	if status == "" {
		err = s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pimm_tracked_projects").Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pimm_tracked_projects WHERE status = $1", string(status)).Scan(&n)
	}
	return n, wrapErr("count tracking", err)
}
