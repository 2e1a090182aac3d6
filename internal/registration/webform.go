package registration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

var machineName = regexp.MustCompile(`^[a-z0-9_]+$`)

// CreateWebform registers a webform. IDs are machine names and element keys
// must be unique within the form.
func (s *Service) CreateWebform(ctx context.Context, w *models.Webform) error {
	w.ID = strings.TrimSpace(w.ID)
	w.Title = strings.TrimSpace(w.Title)
	if !machineName.MatchString(w.ID) {
		return fmt.Errorf("%w: id %q must be a machine name", ErrInvalidWebform, w.ID)
	}
	if w.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidWebform)
	}
	seen := make(map[string]struct{}, len(w.Elements))
	for _, el := range w.Elements {
		if !machineName.MatchString(el.Key) {
			return fmt.Errorf("%w: element key %q must be a machine name", ErrInvalidWebform, el.Key)
		}
		if _, dup := seen[el.Key]; dup {
			return fmt.Errorf("%w: duplicate element %q", ErrInvalidWebform, el.Key)
		}
		seen[el.Key] = struct{}{}
	}

	if err := s.store.CreateWebform(ctx, w); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return fmt.Errorf("%w: %s", ErrWebformExists, w.ID)
		}
		return err
	}
	s.log.Info("webform created", zap.String("webform_id", w.ID), zap.Int("elements", len(w.Elements)))
	return nil
}

// AddSubmission records a completed submission of a webform by a user.
// Values for keys the webform does not declare are rejected.
func (s *Service) AddSubmission(ctx context.Context, webformID string, userID int64, data map[string]string) (*models.Submission, error) {
	w, err := s.webform(ctx, webformID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	keys := make(map[string]struct{}, len(w.Elements))
	for _, el := range w.Elements {
		keys[el.Key] = struct{}{}
	}
	clean := make(map[string]string, len(data))
	for k, v := range data {
		if _, ok := keys[k]; !ok {
			return nil, fmt.Errorf("%w: %q is not an element of %s", ErrInvalidSubmission, k, w.ID)
		}
		clean[k] = strings.TrimSpace(v)
	}

	sub := &models.Submission{WebformID: w.ID, UserID: userID, Data: clean, Completed: true}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}
	s.log.Debug("submission recorded", zap.String("webform_id", w.ID), zap.Int64("user_id", userID))
	return sub, nil
}
