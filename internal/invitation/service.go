// Package invitation builds invitee lists from the principal investigators
// of selected projects.
package invitation

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
	"github.com/david/pimm/internal/names"
)

var (
	ErrListNotFound = errors.New("invitee list not found")
	ErrEmptyTitle   = errors.New("invitee list title is required")
	ErrNoProjects   = errors.New("no projects selected")
	ErrUnknownUser  = errors.New("user not found")
)

type Store interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	FindUserByName(ctx context.Context, name string) (*models.User, error)
	CreateInviteeList(ctx context.Context, l *models.InviteeList) error
	GetInviteeList(ctx context.Context, id int64) (*models.InviteeList, error)
	SetInviteeListUsers(ctx context.Context, id int64, userIDs []int64) error
	ListInviteeLists(ctx context.Context) ([]models.InviteeList, error)
}

// Provisioner finds or creates the account for a PI.
type Provisioner interface {
	Ensure(ctx context.Context, name, email, source string) (*models.User, bool, error)
}

type Service struct {
	store       Store
	provisioner Provisioner
	log         *zap.Logger
}

func NewService(store Store, provisioner Provisioner, log *zap.Logger) *Service {
	return &Service{store: store, provisioner: provisioner, log: log.Named("invitation")}
}

// FilterProjects returns the projects matching every filter, newest first.
func (s *Service) FilterProjects(ctx context.Context, filters []Filter) ([]models.Project, error) {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Project, 0, len(projects))
	for i := range projects {
		keep := true
		for _, f := range filters {
			if !f.Match(&projects[i]) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, projects[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CollectPIs returns the distinct lead PI names of the projects. A linked
// lead PI account wins over the free-text name.
func (s *Service) CollectPIs(ctx context.Context, projectIDs []int64) ([]string, error) {
	var pis []string
	seen := make(map[string]struct{})
	for _, id := range projectIDs {
		p, err := s.store.GetProject(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			s.log.Warn("selected project not found", zap.Int64("project_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}

		name := ""
		if p.LeadPIUserID != nil {
			if u, err := s.store.GetUser(ctx, *p.LeadPIUserID); err == nil {
				name = u.Name
			}
		}
		if name == "" {
			name = names.Normalize(p.LeadPI)
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			pis = append(pis, name)
		}
	}
	return pis, nil
}

type MatchedPI struct {
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
}

type MatchResult struct {
	Matched   []MatchedPI `json:"matched"`
	Unmatched []string    `json:"unmatched"`
}

// Match resolves each PI of the projects to an account by exact username.
func (s *Service) Match(ctx context.Context, projectIDs []int64) (*MatchResult, error) {
	pis, err := s.CollectPIs(ctx, projectIDs)
	if err != nil {
		return nil, err
	}
	res := &MatchResult{Matched: []MatchedPI{}, Unmatched: []string{}}
	for _, pi := range pis {
		u, err := s.store.FindUserByName(ctx, pi)
		switch {
		case err == nil:
			res.Matched = append(res.Matched, MatchedPI{Name: pi, UserID: u.ID})
		case errors.Is(err, db.ErrNotFound):
			res.Unmatched = append(res.Unmatched, pi)
		default:
			return nil, err
		}
	}
	return res, nil
}

const (
	ActionCreate = "create"
	ActionMatch  = "match"
)

// Decision says what to do with an unmatched PI.
type Decision struct {
	PI     string `json:"pi"`
	Action string `json:"action"`
	UserID int64  `json:"user_id,omitempty"`
}

type CreateListRequest struct {
	Title      string     `json:"title"`
	ProjectIDs []int64    `json:"project_ids"`
	Decisions  []Decision `json:"decisions"`
}

type CreateListResult struct {
	List     *models.InviteeList `json:"list"`
	Created  []string            `json:"created"`
	Matched  []string            `json:"matched"`
	Existing []string            `json:"existing"`
	Errors   []string            `json:"errors,omitempty"`
	Message  string              `json:"message"`
}

// CreateList builds an invitee list from the PIs of the selected projects.
// Matched PIs are always included; unmatched PIs follow their decision and
// are skipped without one.
func (s *Service) CreateList(ctx context.Context, req CreateListRequest) (*CreateListResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(req.ProjectIDs) == 0 {
		return nil, ErrNoProjects
	}

	match, err := s.Match(ctx, req.ProjectIDs)
	if err != nil {
		return nil, err
	}

	res := &CreateListResult{Created: []string{}, Matched: []string{}, Existing: []string{}}
	var userIDs []int64
	for _, m := range match.Matched {
		userIDs = append(userIDs, m.UserID)
	}

	decisions := make(map[string]Decision, len(req.Decisions))
	for _, d := range req.Decisions {
		decisions[names.Normalize(d.PI)] = d
	}

	for _, pi := range match.Unmatched {
		d, ok := decisions[pi]
		if !ok {
			continue
		}
		switch d.Action {
		case ActionCreate:
			u, created, err := s.provisioner.Ensure(ctx, pi, "", "invitation")
			if err != nil {
				s.log.Error("failed to create user", zap.String("name", pi), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("Error creating user %s: %v", pi, err))
				continue
			}
			if created {
				res.Created = append(res.Created, u.Name)
			} else {
				res.Existing = append(res.Existing, u.Name)
			}
			userIDs = append(userIDs, u.ID)
		case ActionMatch:
			u, err := s.store.GetUser(ctx, d.UserID)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Cannot match %s: user %d not found", pi, d.UserID))
				continue
			}
			res.Matched = append(res.Matched, u.Name)
			userIDs = append(userIDs, u.ID)
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("Unknown action %q for %s", d.Action, pi))
		}
	}

	list := &models.InviteeList{Title: title, UserIDs: uniqueIDs(userIDs)}
	if err := s.store.CreateInviteeList(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to create invitee list: %w", err)
	}
	res.List = list
	res.Message = fmt.Sprintf("Created invitee list %q with %d users.", list.Title, len(list.UserIDs))
	s.log.Info("invitee list created",
		zap.Int64("list_id", list.ID),
		zap.Int("users", len(list.UserIDs)),
		zap.Int("created", len(res.Created)),
	)
	return res, nil
}

// AddUsers merges userIDs into the list and returns how many were new.
func (s *Service) AddUsers(ctx context.Context, listID int64, userIDs []int64) (int, error) {
	list, err := s.Get(ctx, listID)
	if err != nil {
		return 0, err
	}
	for _, id := range userIDs {
		if _, err := s.store.GetUser(ctx, id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return 0, fmt.Errorf("%w: %d", ErrUnknownUser, id)
			}
			return 0, err
		}
	}

	merged := uniqueIDs(append(slices.Clone(list.UserIDs), userIDs...))
	added := len(merged) - len(uniqueIDs(list.UserIDs))
	if added == 0 {
		return 0, nil
	}
	if err := s.store.SetInviteeListUsers(ctx, listID, merged); err != nil {
		return 0, err
	}
	s.log.Info("users added to invitee list", zap.Int64("list_id", listID), zap.Int("added", added))
	return added, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.InviteeList, error) {
	list, err := s.store.GetInviteeList(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrListNotFound
	}
	return list, err
}

func (s *Service) Lists(ctx context.Context) ([]models.InviteeList, error) {
	return s.store.ListInviteeLists(ctx)
}

// Users returns the accounts on a list.
func (s *Service) Users(ctx context.Context, id int64) ([]models.User, error) {
	list, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(list.UserIDs) == 0 {
		return []models.User{}, nil
	}
	return s.store.GetUsers(ctx, list.UserIDs)
}

// Export renders the list as a Name,Email CSV and names the download.
func (s *Service) Export(ctx context.Context, id int64) (string, []byte, error) {
	users, err := s.Users(ctx, id)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Name", "Email"}); err != nil {
		return "", nil, err
	}
	for _, u := range users {
		if err := w.Write([]string{u.Name, u.Email}); err != nil {
			return "", nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return fmt.Sprintf("invitee_list_%d.csv", id), buf.Bytes(), nil
}

// uniqueIDs drops duplicates and keeps first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
