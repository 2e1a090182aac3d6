package registration

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

type fixture struct {
	store   *db.MemStore
	svc     *Service
	jane    int64
	bob     int64
	carol   int64
	invited int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemStore()
	f := &fixture{store: store, svc: NewService(store, zap.NewNop())}

	ids := make([]int64, 0, 3)
	for _, u := range []*models.User{
		{Name: "Jane Doe", Email: "jane@univ.edu", Active: true},
		{Name: `Bob "Bobby" Smith`, Email: "bob@marine.org", Active: true},
		{Name: "Carol King", Email: "carol@arid.edu", Active: true},
	} {
		require.NoError(t, store.CreateUser(ctx, u))
		ids = append(ids, u.ID)
	}
	f.jane, f.bob, f.carol = ids[0], ids[1], ids[2]

	list := &models.InviteeList{Title: "Spring Workshop", UserIDs: []int64{f.jane, f.bob, f.carol}}
	require.NoError(t, store.CreateInviteeList(ctx, list))
	f.invited = list.ID

	require.NoError(t, f.svc.CreateWebform(ctx, &models.Webform{
		ID:    "spring_reg",
		Title: "Spring Registration",
		Elements: []models.WebformElement{
			{Key: "institution", Title: "Institution"},
			{Key: "attendees", Title: "Attendees"},
			{Key: "markup"},
		},
	}))
	require.NoError(t, f.svc.CreateWebform(ctx, &models.Webform{
		ID:       "dinner",
		Title:    "Dinner RSVP",
		Elements: []models.WebformElement{{Key: "diet", Title: "Dietary needs"}},
	}))
	require.NoError(t, f.svc.CreateWebform(ctx, &models.Webform{ID: "survey", Title: "Survey"}))

	f.submit(t, "spring_reg", f.jane, map[string]string{"institution": "Univ", "attendees": "10"})
	f.submit(t, "spring_reg", f.bob, map[string]string{"institution": "Marine", "attendees": "9"})
	f.submit(t, "spring_reg", f.bob, map[string]string{"institution": "Marine", "attendees": "2"})
	f.submit(t, "dinner", f.carol, map[string]string{"diet": "vegan"})
	return f
}

func (f *fixture) submit(t *testing.T, webform string, user int64, data map[string]string) {
	t.Helper()
	_, err := f.svc.AddSubmission(context.Background(), webform, user, data)
	require.NoError(t, err)
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateRequest{Title: "Spring", InviteeListID: f.invited, WebformIDs: []string{"spring_reg"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.jane, f.bob}, res.List.UserIDs)
	assert.Equal(t, []string{"Jane Doe", `Bob "Bobby" Smith`}, res.Users)
	assert.Equal(t, []string{"Spring Registration"}, res.Webforms)
	assert.Equal(t, "Spring Workshop", res.InviteeList)
	assert.Empty(t, res.Warning)
	assert.Equal(t, `Registration list "Spring" has been created with 2 users.`, res.Message)

	res, err = f.svc.Create(ctx, CreateRequest{Title: "All", InviteeListID: f.invited, WebformIDs: []string{"spring_reg", "dinner", "dinner"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.jane, f.bob, f.carol}, res.List.UserIDs)
	assert.Equal(t, []string{"spring_reg", "dinner"}, res.List.WebformIDs)

	res, err = f.svc.Create(ctx, CreateRequest{Title: "Nobody", InviteeListID: f.invited, WebformIDs: []string{"survey"}})
	require.NoError(t, err)
	assert.Empty(t, res.List.UserIDs)
	assert.NotEmpty(t, res.Warning)

	lists, err := f.svc.Lists(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 3)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty := &models.InviteeList{Title: "Empty"}
	require.NoError(t, f.store.CreateInviteeList(ctx, empty))

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"no title", CreateRequest{Title: "  ", InviteeListID: f.invited, WebformIDs: []string{"dinner"}}, ErrEmptyTitle},
		{"no webforms", CreateRequest{Title: "T", InviteeListID: f.invited}, ErrNoWebforms},
		{"unknown invitee list", CreateRequest{Title: "T", InviteeListID: 9999, WebformIDs: []string{"dinner"}}, ErrInviteeListNotFound},
		{"empty invitee list", CreateRequest{Title: "T", InviteeListID: empty.ID, WebformIDs: []string{"dinner"}}, ErrEmptyInviteeList},
		{"unknown webform", CreateRequest{Title: "T", InviteeListID: f.invited, WebformIDs: []string{"nope"}}, ErrWebformNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, CreateRequest{Title: "All", InviteeListID: f.invited, WebformIDs: []string{"spring_reg", "dinner"}})
	require.NoError(t, err)
	id := res.List.ID

	v, err := f.svc.View(ctx, id, Sort{})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Users)
	require.Len(t, v.Tables, 2)

	spring := v.Tables[0]
	assert.Equal(t, []string{"User ID", "Name", "Institution", "Attendees"}, spring.Header)
	assert.Equal(t, "Submissions for Spring Registration", spring.Caption)
	assert.Equal(t, [][]string{
		{strconv.FormatInt(f.jane, 10), "Jane Doe", "Univ", "10"},
		{strconv.FormatInt(f.bob, 10), `Bob "Bobby" Smith`, "Marine", "2"},
	}, spring.Rows, "only the latest submission per user is shown")

	dinner := v.Tables[1]
	require.Len(t, dinner.Rows, 1)
	assert.Equal(t, "vegan", dinner.Rows[0][2])

	v, err = f.svc.View(ctx, id, Sort{WebformID: "spring_reg", Key: "attendees"})
	require.NoError(t, err)
	assert.Equal(t, "2", v.Tables[0].Rows[0][3], "numeric values sort numerically")
	assert.Equal(t, "10", v.Tables[0].Rows[1][3])

	_, err = f.svc.View(ctx, id, Sort{WebformID: "spring_reg", Key: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = f.svc.View(ctx, id, Sort{WebformID: "survey", Key: "attendees"})
	assert.ErrorIs(t, err, ErrWebformNotFound)
	_, err = f.svc.View(ctx, 9999, Sort{})
	assert.ErrorIs(t, err, ErrListNotFound)

	v, err = f.svc.View(ctx, id, Sort{Key: "institution"})
	require.NoError(t, err, "a key missing from some tables is ignored for them")
	assert.Equal(t, "Marine", v.Tables[0].Rows[0][2])
}

func TestService_EmptyTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, CreateRequest{Title: "Survey", InviteeListID: f.invited, WebformIDs: []string{"survey"}})
	require.NoError(t, err)

	v, err := f.svc.View(ctx, res.List.ID, Sort{})
	require.NoError(t, err)
	require.Len(t, v.Tables, 1)
	assert.Empty(t, v.Tables[0].Rows)
	assert.Equal(t, "No submissions found for Survey", v.Tables[0].Empty)
}

func TestService_UserSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, CreateRequest{Title: "All", InviteeListID: f.invited, WebformIDs: []string{"spring_reg", "dinner"}})
	require.NoError(t, err)

	subs, err := f.svc.UserSubmissions(ctx, res.List.ID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, f.bob, subs.User.ID)
	require.Len(t, subs.Submissions, 1)
	assert.Equal(t, "Spring Registration", subs.Submissions[0].Webform)
	assert.Equal(t, []SubmissionField{
		{Key: "institution", Title: "Institution", Value: "Marine"},
		{Key: "attendees", Title: "Attendees", Value: "2"},
	}, subs.Submissions[0].Fields)

	_, err = f.svc.UserSubmissions(ctx, res.List.ID, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_Registrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, CreateRequest{Title: "All", InviteeListID: f.invited, WebformIDs: []string{"spring_reg", "dinner"}})
	require.NoError(t, err)

	regs, err := f.svc.Registrants(ctx, res.List)
	require.NoError(t, err)
	require.Len(t, regs, 3)
	assert.Equal(t, []string{"spring_reg"}, regs[0].Submitted)
	assert.Equal(t, []string{"dinner"}, regs[0].Missing)
	assert.Equal(t, []string{"dinner"}, regs[2].Submitted)
	assert.Equal(t, StatusSubmitted, regs[1].Status)
	assert.Equal(t, 2, regs[1].Count, "every submission counts, not only the latest")
	assert.NotNil(t, regs[1].LastSubmitted)
}

func TestService_Webforms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fields, err := f.svc.WebformFields(ctx, "spring_reg")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"institution": "Institution", "attendees": "Attendees"}, fields)
	_, err = f.svc.WebformFields(ctx, "nope")
	assert.ErrorIs(t, err, ErrWebformNotFound)

	err = f.svc.CreateWebform(ctx, &models.Webform{ID: "dinner", Title: "Again"})
	assert.ErrorIs(t, err, ErrWebformExists)
	err = f.svc.CreateWebform(ctx, &models.Webform{ID: "Bad Name", Title: "X"})
	assert.ErrorIs(t, err, ErrInvalidWebform)
	err = f.svc.CreateWebform(ctx, &models.Webform{ID: "ok", Title: "X", Elements: []models.WebformElement{{Key: "a"}, {Key: "a"}}})
	assert.ErrorIs(t, err, ErrInvalidWebform)

	_, err = f.svc.AddSubmission(ctx, "dinner", f.jane, map[string]string{"shoe_size": "9"})
	assert.ErrorIs(t, err, ErrInvalidSubmission)
	_, err = f.svc.AddSubmission(ctx, "dinner", 9999, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.AddSubmission(ctx, "nope", f.jane, nil)
	assert.ErrorIs(t, err, ErrWebformNotFound)
}

func TestService_ExportEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, CreateRequest{Title: "Spring", InviteeListID: f.invited, WebformIDs: []string{"spring_reg"}})
	require.NoError(t, err)

	name, data, err := f.svc.ExportEmails(ctx, res.List.ID)
	require.NoError(t, err)
	assert.Equal(t, "registration_emails.csv", name)
	assert.Equal(t, "Name,Email\n\"Jane Doe\",\"jane@univ.edu\"\n\"Bob \"\"Bobby\"\" Smith\",\"bob@marine.org\"\n", string(data))

	_, _, err = f.svc.ExportEmails(ctx, 9999)
	assert.ErrorIs(t, err, ErrListNotFound)
}
