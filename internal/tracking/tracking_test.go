package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/batch"
	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newProject(t *testing.T, store *db.MemStore, title string, end *time.Time) int64 {
	t.Helper()
	p := &models.Project{Title: title, PerformanceEnd: end}
	require.NoError(t, store.CreateProject(context.Background(), p))
	return p.ID
}

func newManager(store Store, c Invalidator) *Manager {
	m := NewManager(store, c, zap.NewNop())
	m.SetClock(func() time.Time { return testNow })
	return m
}

func TestManager_Add(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemStore()
	c := cache.New()
	m := newManager(store, c)

	future := testNow.AddDate(1, 0, 0)
	past := testNow.AddDate(0, -1, 0)
	current := newProject(t, store, "Current", &future)
	ended := newProject(t, store, "Ended", &past)
	open := newProject(t, store, "No End", nil)

	c.Set("dashboard", "cached", cache.TagProjectList)
	entry, err := m.Add(ctx, current, 7, "first")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, entry.Status)
	assert.Equal(t, int64(7), entry.AddedBy)
	assert.Equal(t, testNow, entry.AddedDate)
	_, hit := c.Get("dashboard")
	assert.False(t, hit, "adding invalidates the project list tag")

	_, err = m.Add(ctx, current, 7, "again")
	assert.ErrorIs(t, err, ErrAlreadyTracked)

	entry, err = m.Add(ctx, ended, 7, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, entry.Status)
	assert.Equal(t, "Project automatically set to inactive - performance period ended.", entry.Notes)

	entry, err = m.Add(ctx, open, 7, "Imported")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, entry.Status)

	_, err = m.Add(ctx, 9999, 7, "")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestManager_AddEndedKeepsNotes(t *testing.T) {
	store := db.NewMemStore()
	m := newManager(store, nil)
	past := testNow.AddDate(-1, 0, 0)
	nid := newProject(t, store, "Old", &past)

	entry, err := m.Add(context.Background(), nid, 1, "Added via bulk import")
	require.NoError(t, err)
	assert.Equal(t, "Added via bulk import Project automatically set to inactive - performance period ended.", entry.Notes)
}

func TestManager_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemStore()
	c := cache.New()
	m := newManager(store, c)
	nid := newProject(t, store, "P", nil)
	_, err := m.Add(ctx, nid, 1, "n")
	require.NoError(t, err)

	err = m.UpdateStatus(ctx, nid, "paused", nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	c.Set("project", "cached", cache.ProjectTag(nid))
	require.NoError(t, m.UpdateStatus(ctx, nid, models.StatusPending, nil))
	_, hit := c.Get("project")
	assert.False(t, hit)

	entry, err := store.GetTracking(ctx, nid)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, entry.Status)
	assert.Equal(t, "n", entry.Notes, "nil notes leaves notes untouched")
	require.NotNil(t, entry.Updated)

	notes := "on hold"
	require.NoError(t, m.UpdateStatus(ctx, nid, models.StatusArchived, &notes))
	entry, err = store.GetTracking(ctx, nid)
	require.NoError(t, err)
	assert.Equal(t, "on hold", entry.Notes)

	assert.ErrorIs(t, m.UpdateStatus(ctx, 4242, models.StatusActive, nil), ErrNotTracked)
}

func TestManager_ListAutoInactive(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemStore()
	m := newManager(store, nil)

	end := testNow.AddDate(0, 1, 0)
	soon := newProject(t, store, "Ends Soon", &end)
	archived := newProject(t, store, "Archived", &end)
	_, err := m.Add(ctx, soon, 1, "")
	require.NoError(t, err)
	_, err = m.Add(ctx, archived, 1, "")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(ctx, archived, models.StatusArchived, nil))

	later := testNow.AddDate(0, 2, 0)
	m.SetClock(func() time.Time { return later })

	list, err := m.List(ctx, db.TrackingQuery{Sort: "added_date", Direction: "ASC"})
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[int64]TrackedProject{}
	for _, tp := range list {
		byID[tp.Project.ID] = tp
	}
	assert.Equal(t, models.StatusInactive, byID[soon].Tracking.Status)
	assert.Equal(t, "Automatically set to inactive - performance period ended", byID[soon].Tracking.Notes)
	assert.Equal(t, models.StatusArchived, byID[archived].Tracking.Status)

	stored, err := store.GetTracking(ctx, soon)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, stored.Status)
}

func TestManager_RemoveAndCounts(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemStore()
	m := newManager(store, nil)

	past := testNow.AddDate(-1, 0, 0)
	a := newProject(t, store, "A", nil)
	b := newProject(t, store, "B", &past)
	newProject(t, store, "C", nil)
	_, err := m.Add(ctx, a, 1, "")
	require.NoError(t, err)
	_, err = m.Add(ctx, b, 1, "")
	require.NoError(t, err)

	counts, err := m.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusActive])
	assert.Equal(t, 1, counts[models.StatusInactive])
	assert.Equal(t, 0, counts[models.StatusPending])

	total, err := m.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	_, err = m.Count(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	untracked, err := m.UntrackedIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, untracked, 1)

	require.NoError(t, m.Remove(ctx, a))
	assert.ErrorIs(t, m.Remove(ctx, a), ErrNotTracked)
	untracked, err = m.UntrackedIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, untracked, 2)
}

func TestBulkAdder_ChunksOf20(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemStore()
	m := newManager(store, nil)
	for i := 0; i < 45; i++ {
		newProject(t, store, fmt.Sprintf("Project %d", i), nil)
	}

	var progress [][2]int
	res, err := NewBulkAdder(m, DefaultChunkSize, zap.NewNop()).Run(ctx, 3, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{20, 20, 5}, res.ChunkSizes)
	assert.Equal(t, 45, res.Added+res.Failed)
	assert.Equal(t, 45, res.Added)
	assert.Equal(t, "Successfully added 45 projects to PIMM.", res.Message)
	assert.Equal(t, [][2]int{{0, 45}, {20, 45}, {40, 45}, {45, 45}}, progress)

	entries, err := store.ListTracking(ctx, db.TrackingQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 45)
	assert.Equal(t, "Added via bulk import", entries[0].Notes)

	again, err := NewBulkAdder(m, DefaultChunkSize, zap.NewNop()).Run(ctx, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total)
	assert.Empty(t, again.ChunkSizes)
	assert.Equal(t, "No untracked projects found.", again.Message)
}

type flakyStore struct {
	*db.MemStore
	fail map[int64]bool
}

func (f *flakyStore) InsertTracking(ctx context.Context, e *models.TrackingEntry) error {
	if f.fail[e.ProjectID] {
		return errors.New("insert failed")
	}
	return f.MemStore.InsertTracking(ctx, e)
}

func TestBulkAdder_CountsFailures(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemStore()
	store := &flakyStore{MemStore: mem, fail: map[int64]bool{}}
	for i := 0; i < 5; i++ {
		id := newProject(t, mem, fmt.Sprintf("P%d", i), nil)
		if i%2 == 0 {
			store.fail[id] = true
		}
	}

	res, err := NewBulkAdder(newManager(store, nil), 2, zap.NewNop()).Run(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, res.ChunkSizes)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, "Successfully added 2 projects to PIMM. 3 projects failed to add.", res.Message)

	for id := range store.fail {
		store.fail[id] = true
	}
	none, err := NewBulkAdder(newManager(store, nil), 2, zap.NewNop()).Run(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Added)
	assert.Equal(t, "No new projects were added to PIMM.", none.Message)
}

func TestBulkAdder_RunsAsBackgroundJob(t *testing.T) {
	store := db.NewMemStore()
	for i := 0; i < 25; i++ {
		newProject(t, store, fmt.Sprintf("P%d", i), nil)
	}
	runner := batch.NewRunner(time.Minute, zap.NewNop())
	adder := NewBulkAdder(newManager(store, nil), DefaultChunkSize, zap.NewNop())

	job, err := runner.Start(context.Background(), "tracking_bulk_add", adder.Task(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := runner.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCompleted, final.Status)
	assert.Equal(t, batch.Progress{Done: 25, Total: 25}, final.Progress)

	res, ok := final.Result.(*BulkResult)
	require.True(t, ok)
	assert.Equal(t, []int{20, 5}, res.ChunkSizes)
}
