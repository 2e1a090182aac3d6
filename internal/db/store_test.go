package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/models"
)

func TestMigrationFiles_Embedded(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])

	content, err := migrationsFS.ReadFile("migrations/" + files[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "pimm_tracked_projects")
}

func TestTrackingQuery_OrderBy(t *testing.T) {
	col, asc := TrackingQuery{Sort: "notes", Direction: "ASC"}.orderBy()
	assert.Equal(t, "notes", col)
	assert.True(t, asc)

	col, asc = TrackingQuery{Sort: "nid; DROP TABLE users", Direction: "sideways"}.orderBy()
	assert.Equal(t, "added_date", col)
	assert.False(t, asc)
}

func TestMemStore_Contract(t *testing.T) {
	runRepositoryContract(t, NewMemStore(), "")
}

// TestPostgresStore_Contract runs against a live database when
// PIMM_TEST_DATABASE_URL is set.
func TestPostgresStore_Contract(t *testing.T) {
	dbURL := os.Getenv("PIMM_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("PIMM_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("database unreachable: %v", err)
	}
	require.NoError(t, ApplyMigrations(ctx, pool, zap.NewNop()))

	store := NewStore(pool)
	defer store.Close()
	runRepositoryContract(t, store, fmt.Sprintf("-%d", time.Now().UnixNano()))
}

func runRepositoryContract(t *testing.T, repo Repository, suffix string) {
	ctx := context.Background()
	award := "AA-100" + suffix

	t.Run("award terms are unique", func(t *testing.T) {
		_, err := repo.FindAwardTerm(ctx, award)
		assert.ErrorIs(t, err, ErrNotFound)

		term, err := repo.CreateAwardTerm(ctx, award)
		require.NoError(t, err)
		assert.Equal(t, award, term.Name)

		_, err = repo.CreateAwardTerm(ctx, award)
		assert.ErrorIs(t, err, ErrConflict)

		found, err := repo.FindAwardTerm(ctx, award)
		require.NoError(t, err)
		assert.Equal(t, term.ID, found.ID)
	})

	t.Run("project round trip", func(t *testing.T) {
		term, err := repo.FindAwardTerm(ctx, award)
		require.NoError(t, err)

		start := time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2021, 8, 31, 0, 0, 0, 0, time.UTC)
		p := &models.Project{
			Title:            "Coastal Resilience",
			AwardTermID:      &term.ID,
			PerformanceStart: &start,
			PerformanceEnd:   &end,
			Keywords:         []string{"coast"},
		}
		require.NoError(t, repo.CreateProject(ctx, p))
		require.NotZero(t, p.ID)

		got, err := repo.FindProjectByAwardTerm(ctx, term.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, award, got.AwardNumber)
		require.NotNil(t, got.PerformanceEnd)
		assert.True(t, got.PerformanceEnd.Equal(end))

		got.Title = "Coastal Resilience II"
		got.CoPIUserIDs = []int64{}
		require.NoError(t, repo.UpdateProject(ctx, got))

		again, err := repo.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Coastal Resilience II", again.Title)

		dup := &models.Project{Title: "dup", AwardTermID: &term.ID}
		assert.ErrorIs(t, repo.CreateProject(ctx, dup), ErrConflict)

		_, err = repo.GetProject(ctx, -1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("users", func(t *testing.T) {
		name := "John Smith" + suffix
		u := &models.User{Name: name, Email: "john.smith@example.com", Active: true}
		require.NoError(t, repo.CreateUser(ctx, u))

		found, err := repo.FindUserByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)

		assert.ErrorIs(t, repo.CreateUser(ctx, &models.User{Name: name}), ErrConflict)

		users, err := repo.GetUsers(ctx, []int64{u.ID, u.ID})
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("tracking", func(t *testing.T) {
		term, err := repo.FindAwardTerm(ctx, award)
		require.NoError(t, err)
		p, err := repo.FindProjectByAwardTerm(ctx, term.ID)
		require.NoError(t, err)

		e := &models.TrackingEntry{ProjectID: p.ID, Status: models.StatusActive, AddedDate: time.Now().UTC(), Notes: "n"}
		require.NoError(t, repo.InsertTracking(ctx, e))
		assert.ErrorIs(t, repo.InsertTracking(ctx, &models.TrackingEntry{ProjectID: p.ID, Status: models.StatusActive, AddedDate: time.Now()}), ErrConflict)

		notes := "paused"
		require.NoError(t, repo.UpdateTracking(ctx, p.ID, models.StatusPending, &notes, time.Now().UTC()))

		got, err := repo.GetTracking(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, "paused", got.Notes)
		assert.NotNil(t, got.Updated)

		ids, err := repo.TrackedProjectIDs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, p.ID)

		n, err := repo.CountTracking(ctx, models.StatusPending)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		list, err := repo.ListTracking(ctx, TrackingQuery{Status: models.StatusPending})
		require.NoError(t, err)
		assert.NotEmpty(t, list)

		require.NoError(t, repo.DeleteTracking(ctx, p.ID))
		assert.ErrorIs(t, repo.DeleteTracking(ctx, p.ID), ErrNotFound)
		assert.ErrorIs(t, repo.UpdateTracking(ctx, p.ID, models.StatusActive, nil, time.Now()), ErrNotFound)
	})

	t.Run("lists and submissions", func(t *testing.T) {
		u, err := repo.FindUserByName(ctx, "John Smith"+suffix)
		require.NoError(t, err)

		list := &models.InviteeList{Title: "Summit", UserIDs: []int64{u.ID}}
		require.NoError(t, repo.CreateInviteeList(ctx, list))
		require.NoError(t, repo.SetInviteeListUsers(ctx, list.ID, []int64{u.ID}))

		got, err := repo.GetInviteeList(ctx, list.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{u.ID}, got.UserIDs)

		form := &models.Webform{ID: "summit_rsvp" + suffix, Title: "RSVP", Elements: []models.WebformElement{{Key: "diet", Title: "Diet"}}}
		require.NoError(t, repo.CreateWebform(ctx, form))

		first := &models.Submission{WebformID: form.ID, UserID: u.ID, Data: map[string]string{"diet": "none"}, CreatedAt: time.Now().Add(-time.Hour)}
		second := &models.Submission{WebformID: form.ID, UserID: u.ID, Data: map[string]string{"diet": "vegan"}, CreatedAt: time.Now()}
		require.NoError(t, repo.CreateSubmission(ctx, first))
		require.NoError(t, repo.CreateSubmission(ctx, second))

		subs, err := repo.ListSubmissions(ctx, []string{form.ID}, []int64{u.ID})
		require.NoError(t, err)
		require.Len(t, subs, 2)
		assert.Equal(t, "vegan", subs[1].Data["diet"])

		reg := &models.RegistrationList{Title: "Summit registrants", InviteeListID: list.ID, WebformIDs: []string{form.ID}, UserIDs: []int64{u.ID}}
		require.NoError(t, repo.CreateRegistrationList(ctx, reg))
		gotReg, err := repo.GetRegistrationList(ctx, reg.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{form.ID}, gotReg.WebformIDs)
	})
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	p := &models.Project{Title: "a", Tags: []string{"x"}}
	require.NoError(t, m.CreateProject(ctx, p))

	got, err := m.GetProject(ctx, p.ID)
	require.NoError(t, err)
	got.Tags[0] = "mutated"

	again, err := m.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", again.Tags[0])
}

func TestMemStore_ListTrackingSort(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, note := range []string{"b", "a", "c"} {
		p := &models.Project{Title: note}
		require.NoError(t, m.CreateProject(ctx, p))
		require.NoError(t, m.InsertTracking(ctx, &models.TrackingEntry{
			ProjectID: p.ID, Status: models.StatusActive, AddedDate: base.Add(time.Duration(i) * time.Hour), Notes: note,
		}))
	}

	byNotes, err := m.ListTracking(ctx, TrackingQuery{Sort: "notes", Direction: "ASC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, []string{byNotes[0].Notes, byNotes[1].Notes, byNotes[2].Notes})

	byDate, err := m.ListTracking(ctx, TrackingQuery{})
	require.NoError(t, err)
	assert.Equal(t, "c", byDate[0].Notes)
}
