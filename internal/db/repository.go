package db

import (
	"context"
	"errors"
	"time"

	"github.com/david/pimm/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// TrackingQuery filters and orders the tracking table. Sort is one of
// added_date, status, updated or notes; anything else sorts by added_date.
type TrackingQuery struct {
	Status    models.TrackingStatus
	Sort      string
	Direction string
}

var trackingSorts = map[string]string{
	"added_date": "added_date",
	"status":     "status",
	"updated":    "updated",
	"notes":      "notes",
}

func (q TrackingQuery) orderBy() (string, bool) {
	col, ok := trackingSorts[q.Sort]
	if !ok {
		col = "added_date"
	}
	return col, q.Direction == "ASC" || q.Direction == "asc"
}

// Repository is implemented by the Postgres Store and the MemStore.
type Repository interface {
	FindAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error)
	CreateAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error)

	GetProject(ctx context.Context, id int64) (*models.Project, error)
	FindProjectByAwardTerm(ctx context.Context, termID int64) (*models.Project, error)
	CreateProject(ctx context.Context, p *models.Project) error
	UpdateProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListProjectIDs(ctx context.Context) ([]int64, error)

	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	FindUserByName(ctx context.Context, name string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	InsertTracking(ctx context.Context, e *models.TrackingEntry) error
	GetTracking(ctx context.Context, nid int64) (*models.TrackingEntry, error)
	UpdateTracking(ctx context.Context, nid int64, status models.TrackingStatus, notes *string, updated time.Time) error
	DeleteTracking(ctx context.Context, nid int64) error
	ListTracking(ctx context.Context, q TrackingQuery) ([]models.TrackingEntry, error)
	TrackedProjectIDs(ctx context.Context) ([]int64, error)
	CountTracking(ctx context.Context, status models.TrackingStatus) (int, error)

	CreateInviteeList(ctx context.Context, l *models.InviteeList) error
	GetInviteeList(ctx context.Context, id int64) (*models.InviteeList, error)
	SetInviteeListUsers(ctx context.Context, id int64, userIDs []int64) error
	ListInviteeLists(ctx context.Context) ([]models.InviteeList, error)

	CreateWebform(ctx context.Context, w *models.Webform) error
	GetWebform(ctx context.Context, id string) (*models.Webform, error)
	ListWebforms(ctx context.Context) ([]models.Webform, error)
	CreateSubmission(ctx context.Context, s *models.Submission) error
	ListSubmissions(ctx context.Context, webformIDs []string, userIDs []int64) ([]models.Submission, error)

	CreateRegistrationList(ctx context.Context, l *models.RegistrationList) error
	GetRegistrationList(ctx context.Context, id int64) (*models.RegistrationList, error)
	ListRegistrationLists(ctx context.Context) ([]models.RegistrationList, error)

	Close()
}
