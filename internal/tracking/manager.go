// Package tracking keeps the PIMM status of tracked projects.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

var (
	ErrAlreadyTracked  = errors.New("project is already tracked")
	ErrNotTracked      = errors.New("project is not tracked")
	ErrInvalidStatus   = errors.New("invalid tracking status")
	ErrProjectNotFound = errors.New("project not found")
)

const (
	addedInactiveNote = "Project automatically set to inactive - performance period ended."
	readInactiveNote  = "Automatically set to inactive - performance period ended"
)

// Store is the storage the tracking manager needs.
type Store interface {
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjectIDs(ctx context.Context) ([]int64, error)
	InsertTracking(ctx context.Context, e *models.TrackingEntry) error
	GetTracking(ctx context.Context, nid int64) (*models.TrackingEntry, error)
	UpdateTracking(ctx context.Context, nid int64, status models.TrackingStatus, notes *string, updated time.Time) error
	DeleteTracking(ctx context.Context, nid int64) error
	ListTracking(ctx context.Context, q db.TrackingQuery) ([]models.TrackingEntry, error)
	TrackedProjectIDs(ctx context.Context) ([]int64, error)
	CountTracking(ctx context.Context, status models.TrackingStatus) (int, error)
}

// Invalidator drops cached entries by tag.
type Invalidator interface {
	InvalidateTags(tags ...string) int
}

// TrackedProject pairs a project with its tracking row.
type TrackedProject struct {
	Project  models.Project       `json:"project"`
	Tracking models.TrackingEntry `json:"tracking"`
}

type Manager struct {
	store Store
	cache Invalidator
	log   *zap.Logger
	now   func() time.Time
}

func NewManager(store Store, invalidator Invalidator, log *zap.Logger) *Manager {
	return &Manager{store: store, cache: invalidator, log: log.Named("tracking"), now: time.Now}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Add starts tracking a project. Projects whose performance period has
// already ended start out inactive.
func (m *Manager) Add(ctx context.Context, nid, addedBy int64, notes string) (*models.TrackingEntry, error) {
	project, err := m.store.GetProject(ctx, nid)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrProjectNotFound, nid)
		}
		return nil, err
	}

	if _, err := m.store.GetTracking(ctx, nid); err == nil {
		m.log.Info("project already tracked", zap.Int64("nid", nid))
		return nil, ErrAlreadyTracked
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	now := m.now()
	entry := &models.TrackingEntry{
		ProjectID: nid,
		Status:    models.StatusActive,
		AddedDate: now,
		AddedBy:   addedBy,
		Notes:     notes,
	}
	if project.PerformanceEnded(now) {
		entry.Status = models.StatusInactive
		entry.Notes = strings.TrimSpace(notes + " " + addedInactiveNote)
	}

	if err := m.store.InsertTracking(ctx, entry); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrAlreadyTracked
		}
		return nil, fmt.Errorf("failed to add project %d: %w", nid, err)
	}
	m.invalidate(nid)

	m.log.Info("project added",
		zap.Int64("nid", nid),
		zap.String("status", string(entry.Status)),
		zap.String("title", project.Title),
	)
	return entry, nil
}

// UpdateStatus changes the status and, when notes is non-nil, the notes.
func (m *Manager) UpdateStatus(ctx context.Context, nid int64, status models.TrackingStatus, notes *string) error {
	if !status.Valid() {
		m.log.Warn("invalid status provided", zap.String("status", string(status)))
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := m.store.UpdateTracking(ctx, nid, status, notes, m.now()); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotTracked
		}
		return err
	}
	m.invalidate(nid)
	return nil
}

func (m *Manager) Remove(ctx context.Context, nid int64) error {
	if err := m.store.DeleteTracking(ctx, nid); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotTracked
		}
		return err
	}
	m.invalidate(nid)
	m.log.Info("project removed", zap.Int64("nid", nid))
	return nil
}

// List returns tracked projects in the requested order. Entries whose
// project has ended are moved to inactive as they are read.
func (m *Manager) List(ctx context.Context, q db.TrackingQuery) ([]TrackedProject, error) {
	if q.Status != "" && !q.Status.Valid() {
		q.Status = ""
	}
	entries, err := m.store.ListTracking(ctx, q)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]TrackedProject, 0, len(entries))
	for _, entry := range entries {
		project, err := m.store.GetProject(ctx, entry.ProjectID)
		if errors.Is(err, db.ErrNotFound) {
			m.log.Warn("tracked project not found", zap.Int64("nid", entry.ProjectID))
			continue
		}
		if err != nil {
			return nil, err
		}

		if project.PerformanceEnded(now) && entry.Status != models.StatusInactive && entry.Status != models.StatusArchived {
			note := readInactiveNote
			if err := m.UpdateStatus(ctx, entry.ProjectID, models.StatusInactive, &note); err != nil {
				m.log.Error("auto-inactive update failed", zap.Int64("nid", entry.ProjectID), zap.Error(err))
			} else {
				entry.Status = models.StatusInactive
				entry.Notes = note
				entry.Updated = &now
			}
		}
		out = append(out, TrackedProject{Project: *project, Tracking: entry})
	}
	return out, nil
}

// Count returns the number of tracked projects, optionally for one status.
func (m *Manager) Count(ctx context.Context, status models.TrackingStatus) (int, error) {
	if status != "" && !status.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return m.store.CountTracking(ctx, status)
}

// StatusCounts returns the count for every status.
func (m *Manager) StatusCounts(ctx context.Context) (map[models.TrackingStatus]int, error) {
	counts := make(map[models.TrackingStatus]int, len(models.TrackingStatuses))
	for _, status := range models.TrackingStatuses {
		n, err := m.store.CountTracking(ctx, status)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

// UntrackedIDs returns the ids of projects without a tracking row, ascending.
func (m *Manager) UntrackedIDs(ctx context.Context) ([]int64, error) {
	all, err := m.store.ListProjectIDs(ctx)
	if err != nil {
		return nil, err
	}
	tracked, err := m.store.TrackedProjectIDs(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(tracked))
	for _, id := range tracked {
		seen[id] = struct{}{}
	}
	untracked := make([]int64, 0, len(all))
	for _, id := range all {
		if _, ok := seen[id]; !ok {
			untracked = append(untracked, id)
		}
	}
	slices.Sort(untracked)
	return untracked, nil
}

func (m *Manager) invalidate(nid int64) {
	if m.cache == nil {
		return
	}
	m.cache.InvalidateTags(cache.TagProjectList, cache.ProjectTag(nid))
}
