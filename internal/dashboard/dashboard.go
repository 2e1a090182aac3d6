// Package dashboard aggregates tracked projects, invitee lists and
// registration lists into one overview.
package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
	"github.com/david/pimm/internal/registration"
	"github.com/david/pimm/internal/tracking"
)

const (
	dateLayout   = "2006-01-02"
	notAvailable = "N/A"
	projectsKey  = "pimm_dashboard_projects"
)

type Tracker interface {
	List(ctx context.Context, q db.TrackingQuery) ([]tracking.TrackedProject, error)
	StatusCounts(ctx context.Context) (map[models.TrackingStatus]int, error)
	UntrackedIDs(ctx context.Context) ([]int64, error)
}

type Store interface {
	ListInviteeLists(ctx context.Context) ([]models.InviteeList, error)
	ListRegistrationLists(ctx context.Context) ([]models.RegistrationList, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	GetWebform(ctx context.Context, id string) (*models.Webform, error)
}

type Registrations interface {
	Registrants(ctx context.Context, list *models.RegistrationList) ([]registration.Registrant, error)
}

type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, tags ...string)
}

type ProjectRow struct {
	ID          int64                 `json:"id"`
	NID         int64                 `json:"nid"`
	Title       string                `json:"title"`
	AwardNumber string                `json:"award_number"`
	PI          string                `json:"pi"`
	Status      models.TrackingStatus `json:"status"`
	AddedDate   string                `json:"added_date"`
	Notes       string                `json:"notes"`
}

type Projects struct {
	Count        int                           `json:"count"`
	Untracked    int                           `json:"untracked"`
	Rows         []ProjectRow                  `json:"rows"`
	StatusCounts map[models.TrackingStatus]int `json:"status_counts"`
}

type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type InviteeListSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Created   string    `json:"created"`
	UserCount int       `json:"user_count"`
	Users     []UserRef `json:"users"`
}

type Invitations struct {
	Count      int                  `json:"count"`
	TotalUsers int                  `json:"total_users"`
	Lists      []InviteeListSummary `json:"lists"`
}

type WebformRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type RegistrantRow struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	Submitted string `json:"submitted"`
	Count     int    `json:"count"`
}

type RegistrationListSummary struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Created         string          `json:"created"`
	RegistrantCount int             `json:"registrant_count"`
	WebformCount    int             `json:"webform_count"`
	Registrants     []RegistrantRow `json:"registrants"`
	Webforms        []WebformRef    `json:"webforms"`
}

type RegistrationData struct {
	Count      int                       `json:"count"`
	TotalUsers int                       `json:"total_users"`
	Lists      []RegistrationListSummary `json:"lists"`
}

type Dashboard struct {
	Projects      Projects         `json:"projects"`
	Invitations   Invitations      `json:"invitations"`
	Registrations RegistrationData `json:"registrations"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

type Service struct {
	tracker       Tracker
	store         Store
	registrations Registrations
	cache         Cache
	log           *zap.Logger
	now           func() time.Time
}

func NewService(tracker Tracker, store Store, registrations Registrations, c Cache, log *zap.Logger) *Service {
	return &Service{
		tracker:       tracker,
		store:         store,
		registrations: registrations,
		cache:         c,
		log:           log.Named("dashboard"),
		now:           time.Now,
	}
}

// Build assembles the dashboard. A section that fails to load is logged and
// left empty so the rest of the page still renders.
func (s *Service) Build(ctx context.Context) *Dashboard {
	d := &Dashboard{GeneratedAt: s.now()}

	projects, err := s.projects(ctx)
	if err != nil {
		s.log.Error("failed to load project data", zap.Error(err))
		projects = emptyProjects()
	}
	d.Projects = *projects

	invitations, err := s.invitations(ctx)
	if err != nil {
		s.log.Error("failed to load invitation data", zap.Error(err))
		invitations = &Invitations{Lists: []InviteeListSummary{}}
	}
	d.Invitations = *invitations

	registrations, err := s.registrationData(ctx)
	if err != nil {
		s.log.Error("failed to load registration data", zap.Error(err))
		registrations = &RegistrationData{Lists: []RegistrationListSummary{}}
	}
	d.Registrations = *registrations
	return d
}

func emptyProjects() *Projects {
	return &Projects{Rows: []ProjectRow{}, StatusCounts: map[models.TrackingStatus]int{}}
}

// projects is cached under the project list tag, which tracking writes and
// import commits invalidate.
func (s *Service) projects(ctx context.Context) (*Projects, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(projectsKey); ok {
			if p, ok := v.(*Projects); ok {
				return p, nil
			}
		}
	}

	tracked, err := s.tracker.List(ctx, db.TrackingQuery{Sort: "added_date", Direction: "DESC"})
	if err != nil {
		return nil, err
	}
	counts, err := s.tracker.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	untracked, err := s.tracker.UntrackedIDs(ctx)
	if err != nil {
		return nil, err
	}

	p := emptyProjects()
	p.Count = len(tracked)
	p.Untracked = len(untracked)
	for status, n := range counts {
		if n > 0 {
			p.StatusCounts[status] = n
		}
	}
	for _, tp := range tracked {
		p.Rows = append(p.Rows, ProjectRow{
			ID:          tp.Tracking.ID,
			NID:         tp.Project.ID,
			Title:       tp.Project.Title,
			AwardNumber: orNA(tp.Project.AwardNumber),
			PI:          orNA(tp.Project.LeadPI),
			Status:      tp.Tracking.Status,
			AddedDate:   tp.Tracking.AddedDate.Format(dateLayout),
			Notes:       tp.Tracking.Notes,
		})
	}

	if s.cache != nil {
		s.cache.Set(projectsKey, p, cache.TagProjectList)
	}
	return p, nil
}

func (s *Service) invitations(ctx context.Context) (*Invitations, error) {
	lists, err := s.store.ListInviteeLists(ctx)
	if err != nil {
		return nil, err
	}
	out := &Invitations{Count: len(lists), Lists: make([]InviteeListSummary, 0, len(lists))}
	all := make(map[int64]struct{})
	for _, l := range lists {
		sum := InviteeListSummary{ID: l.ID, Title: l.Title, Created: l.CreatedAt.Format(dateLayout), Users: []UserRef{}}
		if len(l.UserIDs) > 0 {
			users, err := s.store.GetUsers(ctx, l.UserIDs)
			if err != nil {
				return nil, err
			}
			for _, u := range users {
				sum.Users = append(sum.Users, UserRef{ID: u.ID, Name: u.Name, Email: u.Email})
				all[u.ID] = struct{}{}
			}
		}
		sum.UserCount = len(sum.Users)
		out.Lists = append(out.Lists, sum)
	}
	out.TotalUsers = len(all)
	return out, nil
}

func (s *Service) registrationData(ctx context.Context) (*RegistrationData, error) {
	lists, err := s.store.ListRegistrationLists(ctx)
	if err != nil {
		return nil, err
	}
	out := &RegistrationData{Count: len(lists), Lists: make([]RegistrationListSummary, 0, len(lists))}
	for i := range lists {
		l := &lists[i]
		regs, err := s.registrations.Registrants(ctx, l)
		if err != nil {
			return nil, err
		}
		sum := RegistrationListSummary{
			ID:          l.ID,
			Title:       l.Title,
			Created:     l.CreatedAt.Format(dateLayout),
			Registrants: make([]RegistrantRow, 0, len(regs)),
			Webforms:    make([]WebformRef, 0, len(l.WebformIDs)),
		}
		for _, r := range regs {
			row := RegistrantRow{Name: r.Name, Email: r.Email, Status: r.Status, Count: r.Count}
			if r.LastSubmitted != nil {
				row.Submitted = r.LastSubmitted.Format(dateLayout)
			}
			sum.Registrants = append(sum.Registrants, row)
		}
		for _, wid := range l.WebformIDs {
			ref := WebformRef{ID: wid, Title: wid}
			if w, err := s.store.GetWebform(ctx, wid); err == nil {
				ref.Title = w.Title
			}
			sum.Webforms = append(sum.Webforms, ref)
		}
		sum.RegistrantCount = len(sum.Registrants)
		sum.WebformCount = len(sum.Webforms)
		out.TotalUsers += sum.RegistrantCount
		out.Lists = append(out.Lists, sum)
	}
	return out, nil
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
