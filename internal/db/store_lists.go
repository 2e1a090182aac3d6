package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/david/pimm/internal/models"
)

func (s *Store) CreateInviteeList(ctx context.Context, l *models.InviteeList) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO invitee_lists (title, user_ids) VALUES ($1, $2)
		RETURNING id, created_at
	`, l.Title, nonNilIDs(l.UserIDs)).Scan(&l.ID, &l.CreatedAt)
	return wrapErr("create invitee list", err)
}

func (s *Store) GetInviteeList(ctx context.Context, id int64) (*models.InviteeList, error) {
	var l models.InviteeList
	err := s.pool.QueryRow(ctx, "SELECT id, title, user_ids, created_at FROM invitee_lists WHERE id = $1", id).
		Scan(&l.ID, &l.Title, &l.UserIDs, &l.CreatedAt)
	if err != nil {
		return nil, wrapErr("get invitee list", err)
	}
	return &l, nil
}

func (s *Store) SetInviteeListUsers(ctx context.Context, id int64, userIDs []int64) error {
	tag, err := s.pool.Exec(ctx, "UPDATE invitee_lists SET user_ids = $2 WHERE id = $1", id, nonNilIDs(userIDs))
	if err != nil {
		return wrapErr("update invitee list", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update invitee list %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) ListInviteeLists(ctx context.Context) ([]models.InviteeList, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, title, user_ids, created_at FROM invitee_lists ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, wrapErr("list invitee lists", err)
	}
	defer rows.Close()

	var out []models.InviteeList
	for rows.Next() {
		var l models.InviteeList
		if err := rows.Scan(&l.ID, &l.Title, &l.UserIDs, &l.CreatedAt); err != nil {
			return nil, wrapErr("scan invitee list", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CreateWebform(ctx context.Context, w *models.Webform) error {
	elements, err := json.Marshal(w.Elements)
	if err != nil {
		return fmt.Errorf("encode webform elements: %w", err)
	}
	_, err = s.pool.Exec(ctx, "INSERT INTO webforms (id, title, elements) VALUES ($1, $2, $3)", w.ID, w.Title, elements)
	return wrapErr("create webform", err)
}

func scanWebform(scan func(dest ...any) error) (models.Webform, error) {
	var w models.Webform
	var raw []byte
	if err := scan(&w.ID, &w.Title, &raw); err != nil {
		return w, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &w.Elements); err != nil {
			return w, fmt.Errorf("decode webform elements: %w", err)
		}
	}
	return w, nil
}

func (s *Store) GetWebform(ctx context.Context, id string) (*models.Webform, error) {
	w, err := scanWebform(s.pool.QueryRow(ctx, "SELECT id, title, elements FROM webforms WHERE id = $1", id).Scan)
	if err != nil {
		return nil, wrapErr("get webform", err)
	}
	return &w, nil
}

func (s *Store) ListWebforms(ctx context.Context) ([]models.Webform, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, title, elements FROM webforms ORDER BY title")
	if err != nil {
		return nil, wrapErr("list webforms", err)
	}
	defer rows.Close()

	var out []models.Webform
	for rows.Next() {
		w, err := scanWebform(rows.Scan)
		if err != nil {
			return nil, wrapErr("scan webform", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return fmt.Errorf("encode submission data: %w", err)
	}
	if sub.CreatedAt.IsZero() {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO webform_submissions (webform_id, user_id, data, completed)
			VALUES ($1, $2, $3, $4) RETURNING id, created_at
		`, sub.WebformID, sub.UserID, data, sub.Completed).Scan(&sub.ID, &sub.CreatedAt)
	} else {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO webform_submissions (webform_id, user_id, data, completed, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id
		`, sub.WebformID, sub.UserID, data, sub.Completed, sub.CreatedAt).Scan(&sub.ID)
	}
	return wrapErr("create submission", err)
}

// ListSubmissions returns submissions to any of the webforms by any of the
// users, oldest first.
func (s *Store) ListSubmissions(ctx context.Context, webformIDs []string, userIDs []int64) ([]models.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, webform_id, user_id, data, completed, created_at
		FROM webform_submissions
		WHERE webform_id = ANY($1) AND user_id = ANY($2)
		ORDER BY created_at, id
	`, webformIDs, userIDs)
	if err != nil {
		return nil, wrapErr("list submissions", err)
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		var sub models.Submission
		var raw []byte
		if err := rows.Scan(&sub.ID, &sub.WebformID, &sub.UserID, &raw, &sub.Completed, &sub.CreatedAt); err != nil {
			return nil, wrapErr("scan submission", err)
		}
		if err := json.Unmarshal(raw, &sub.Data); err != nil {
			return nil, fmt.Errorf("decode submission %d: %w", sub.ID, err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) CreateRegistrationList(ctx context.Context, l *models.RegistrationList) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO registration_lists (title, invitee_list_id, webform_ids, user_ids)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at
	`, l.Title, l.InviteeListID, nonNil(l.WebformIDs), nonNilIDs(l.UserIDs)).Scan(&l.ID, &l.CreatedAt)
	return wrapErr("create registration list", err)
}

const registrationCols = "id, title, invitee_list_id, webform_ids, user_ids, created_at"

func (s *Store) GetRegistrationList(ctx context.Context, id int64) (*models.RegistrationList, error) {
	var l models.RegistrationList
	err := s.pool.QueryRow(ctx, "SELECT "+registrationCols+" FROM registration_lists WHERE id = $1", id).
		Scan(&l.ID, &l.Title, &l.InviteeListID, &l.WebformIDs, &l.UserIDs, &l.CreatedAt)
	if err != nil {
		return nil, wrapErr("get registration list", err)
	}
	return &l, nil
}

func (s *Store) ListRegistrationLists(ctx context.Context) ([]models.RegistrationList, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+registrationCols+" FROM registration_lists ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, wrapErr("list registration lists", err)
	}
	defer rows.Close()

	var out []models.RegistrationList
	for rows.Next() {
		var l models.RegistrationList
		if err := rows.Scan(&l.ID, &l.Title, &l.InviteeListID, &l.WebformIDs, &l.UserIDs, &l.CreatedAt); err != nil {
			return nil, wrapErr("scan registration list", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
