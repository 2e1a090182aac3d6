package invitation

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/auth"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

type fixture struct {
	store  *db.MemStore
	svc    *Service
	ocean  int64
	reef   int64
	desert int64
	janeID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemStore()
	prov := auth.NewProvisioner(store, "pimm.test", 16, zap.NewNop())
	f := &fixture{store: store, svc: NewService(store, prov, zap.NewNop())}

	jane := &models.User{Name: "Jane Doe", Email: "jane@univ.edu", Active: true}
	require.NoError(t, store.CreateUser(ctx, jane))
	f.janeID = jane.ID

	projects := []*models.Project{
		{Title: "Ocean Sensors", Institution: "Coastal University", LeadPI: "Smith, John",
			PerformanceStart: date("2020-09-01"), PerformanceEnd: date("2021-08-31")},
		{Title: "Reef Survey", Institution: "Marine Institute", LeadPI: "Doe, Jane", LeadPIUserID: &f.janeID,
			PerformanceStart: date("2022-01-01"), PerformanceEnd: date("2024-12-31")},
		{Title: "Desert Soils", Institution: "Arid State University", LeadPI: "Roe, Richard A."},
	}
	for _, p := range projects {
		require.NoError(t, store.CreateProject(ctx, p))
	}
	f.ocean, f.reef, f.desert = projects[0].ID, projects[1].ID, projects[2].ID
	return f
}

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"title contains", Filter{Field: FieldTitle, Operator: OpContains, Value: "x"}, false},
		{"lead pi ends with", Filter{Field: FieldLeadPI, Operator: OpEndsWith, Value: "x"}, false},
		{"period before", Filter{Field: FieldPerformancePeriod, Operator: OpBefore, Value: "2021-01-01"}, false},
		{"period between", Filter{Field: FieldPerformancePeriod, Operator: OpBetween, Value: "2021-01-01", Value2: "2022-01-01"}, false},
		{"text with date operator", Filter{Field: FieldTitle, Operator: OpBefore, Value: "2021-01-01"}, true},
		{"period with text operator", Filter{Field: FieldPerformancePeriod, Operator: OpContains, Value: "2021"}, true},
		{"bad date", Filter{Field: FieldPerformancePeriod, Operator: OpAfter, Value: "Jan 2021"}, true},
		{"between missing end", Filter{Field: FieldPerformancePeriod, Operator: OpBetween, Value: "2021-01-01"}, true},
		{"unknown field", Filter{Field: "sponsor", Operator: OpContains, Value: "NSF"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_FilterProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	titles := func(ps []models.Project) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Title)
		}
		return out
	}

	got, err := f.svc.FilterProjects(ctx, []Filter{{Field: FieldInstitution, Operator: OpEndsWith, Value: "university"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Ocean Sensors", "Desert Soils"}, titles(got))

	got, err = f.svc.FilterProjects(ctx, []Filter{{Field: FieldTitle, Operator: OpStartsWith, Value: "reef"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Reef Survey"}, titles(got))

	got, err = f.svc.FilterProjects(ctx, []Filter{{Field: FieldPerformancePeriod, Operator: OpBefore, Value: "2022-01-01"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ocean Sensors"}, titles(got))

	got, err = f.svc.FilterProjects(ctx, []Filter{{Field: FieldPerformancePeriod, Operator: OpAfter, Value: "2021-06-01"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Reef Survey"}, titles(got))

	got, err = f.svc.FilterProjects(ctx, []Filter{
		{Field: FieldPerformancePeriod, Operator: OpBetween, Value: "2020-01-01", Value2: "2021-12-31"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ocean Sensors"}, titles(got))

	got, err = f.svc.FilterProjects(ctx, []Filter{
		{Field: FieldInstitution, Operator: OpContains, Value: "univ"},
		{Field: FieldLeadPI, Operator: OpContains, Value: "roe"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Desert Soils"}, titles(got))

	all, err := f.svc.FilterProjects(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.FilterProjects(ctx, []Filter{{Field: "bogus"}})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestService_Match(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Match(context.Background(), []int64{f.ocean, f.reef, f.desert, 9999})
	require.NoError(t, err)
	assert.Equal(t, []MatchedPI{{Name: "Jane Doe", UserID: f.janeID}}, res.Matched)
	assert.Equal(t, []string{"John Smith", "Richard Roe"}, res.Unmatched)
}

func TestService_CreateList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &models.User{Name: "R. Roe", Email: "rroe@arid.edu", Active: true}
	require.NoError(t, f.store.CreateUser(ctx, other))

	_, err := f.svc.CreateList(ctx, CreateListRequest{Title: " ", ProjectIDs: []int64{f.ocean}})
	assert.ErrorIs(t, err, ErrEmptyTitle)
	_, err = f.svc.CreateList(ctx, CreateListRequest{Title: "Spring"})
	assert.ErrorIs(t, err, ErrNoProjects)

	res, err := f.svc.CreateList(ctx, CreateListRequest{
		Title:      "Spring Workshop",
		ProjectIDs: []int64{f.ocean, f.reef, f.desert},
		Decisions: []Decision{
			{PI: "Smith, John", Action: ActionCreate},
			{PI: "Richard Roe", Action: ActionMatch, UserID: other.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith"}, res.Created)
	assert.Equal(t, []string{"R. Roe"}, res.Matched)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.List)
	assert.Len(t, res.List.UserIDs, 3)
	assert.Equal(t, `Created invitee list "Spring Workshop" with 3 users.`, res.Message)

	john, err := f.store.FindUserByName(ctx, "John Smith")
	require.NoError(t, err)
	assert.Equal(t, "john.smith@pimm.test", john.Email)
	assert.ElementsMatch(t, []int64{f.janeID, john.ID, other.ID}, res.List.UserIDs)

	undecided, err := f.svc.CreateList(ctx, CreateListRequest{Title: "Only matched", ProjectIDs: []int64{f.desert, f.reef}})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.janeID}, undecided.List.UserIDs)
}

func TestService_AddUsersAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateList(ctx, CreateListRequest{Title: "List", ProjectIDs: []int64{f.reef}})
	require.NoError(t, err)
	listID := res.List.ID

	bob := &models.User{Name: "Bob, Jr", Email: "bob@univ.edu", Active: true}
	require.NoError(t, f.store.CreateUser(ctx, bob))

	added, err := f.svc.AddUsers(ctx, listID, []int64{bob.ID, f.janeID, bob.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = f.svc.AddUsers(ctx, listID, []int64{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	_, err = f.svc.AddUsers(ctx, listID, []int64{424242})
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = f.svc.AddUsers(ctx, 424242, []int64{bob.ID})
	assert.ErrorIs(t, err, ErrListNotFound)

	filename, data, err := f.svc.Export(ctx, listID)
	require.NoError(t, err)
	assert.Equal(t, "invitee_list_"+strconv.FormatInt(listID, 10)+".csv", filename)
	assert.Equal(t, "Name,Email\nJane Doe,jane@univ.edu\n\"Bob, Jr\",bob@univ.edu\n", string(data))

	_, _, err = f.svc.Export(ctx, 424242)
	assert.ErrorIs(t, err, ErrListNotFound)
}
