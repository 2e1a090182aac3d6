// Package registration cross-references invitee lists with webform
// submissions to find out who actually registered.
package registration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

var (
	ErrListNotFound        = errors.New("registration list not found")
	ErrInviteeListNotFound = errors.New("invitee list not found")
	ErrEmptyInviteeList    = errors.New("the selected invitee list is empty")
	ErrEmptyTitle          = errors.New("registration list title is required")
	ErrNoWebforms          = errors.New("at least one webform is required")
	ErrWebformNotFound     = errors.New("webform not found")
	ErrWebformExists       = errors.New("webform already exists")
	ErrInvalidWebform      = errors.New("invalid webform")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrUserNotFound        = errors.New("user not found")
	ErrUnknownField        = errors.New("unknown webform field")
)

type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	GetInviteeList(ctx context.Context, id int64) (*models.InviteeList, error)
	CreateWebform(ctx context.Context, w *models.Webform) error
	GetWebform(ctx context.Context, id string) (*models.Webform, error)
	ListWebforms(ctx context.Context) ([]models.Webform, error)
	CreateSubmission(ctx context.Context, s *models.Submission) error
	ListSubmissions(ctx context.Context, webformIDs []string, userIDs []int64) ([]models.Submission, error)
	CreateRegistrationList(ctx context.Context, l *models.RegistrationList) error
	GetRegistrationList(ctx context.Context, id int64) (*models.RegistrationList, error)
	ListRegistrationLists(ctx context.Context) ([]models.RegistrationList, error)
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log.Named("registration")}
}

type CreateRequest struct {
	Title         string   `json:"title"`
	InviteeListID int64    `json:"invitee_list_id"`
	WebformIDs    []string `json:"webform_ids"`
}

type CreateResult struct {
	List        *models.RegistrationList `json:"list"`
	InviteeList string                   `json:"invitee_list"`
	Webforms    []string                 `json:"webforms"`
	Users       []string                 `json:"users"`
	Warning     string                   `json:"warning,omitempty"`
	Message     string                   `json:"message"`
}

// Create builds a registration list holding the invitee list users that
// submitted any of the chosen webforms.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	webformIDs := uniqueStrings(req.WebformIDs)
	if len(webformIDs) == 0 {
		return nil, ErrNoWebforms
	}

	invitees, err := s.store.GetInviteeList(ctx, req.InviteeListID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInviteeListNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(invitees.UserIDs) == 0 {
		return nil, ErrEmptyInviteeList
	}

	res := &CreateResult{InviteeList: invitees.Title, Webforms: []string{}, Users: []string{}}
	for _, id := range webformIDs {
		w, err := s.webform(ctx, id)
		if err != nil {
			return nil, err
		}
		res.Webforms = append(res.Webforms, w.Title)
	}

	subs, err := s.store.ListSubmissions(ctx, webformIDs, invitees.UserIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	submitted := make(map[int64]bool, len(subs))
	for _, sub := range subs {
		submitted[sub.UserID] = true
	}

	var userIDs []int64
	for _, id := range invitees.UserIDs {
		if submitted[id] && !slices.Contains(userIDs, id) {
			userIDs = append(userIDs, id)
		}
	}
	if len(userIDs) == 0 {
		res.Warning = "No users found who have submitted the selected webforms from the invitee list. The registration list will be created without users."
		s.log.Warn("registration list has no registrants", zap.Int64("invitee_list_id", invitees.ID))
	} else {
		users, err := s.users(ctx, userIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			res.Users = append(res.Users, u.Name)
		}
	}

	list := &models.RegistrationList{
		Title:         title,
		InviteeListID: invitees.ID,
		WebformIDs:    webformIDs,
		UserIDs:       userIDs,
	}
	if list.UserIDs == nil {
		list.UserIDs = []int64{}
	}
	if err := s.store.CreateRegistrationList(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to create registration list: %w", err)
	}
	res.List = list
	res.Message = fmt.Sprintf("Registration list %q has been created with %d users.", list.Title, len(list.UserIDs))
	s.log.Info("registration list created",
		zap.Int64("list_id", list.ID),
		zap.Int64("invitee_list_id", invitees.ID),
		zap.Strings("webforms", webformIDs),
		zap.Int("users", len(list.UserIDs)),
	)
	return res, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.RegistrationList, error) {
	l, err := s.store.GetRegistrationList(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrListNotFound
	}
	return l, err
}

func (s *Service) Lists(ctx context.Context) ([]models.RegistrationList, error) {
	return s.store.ListRegistrationLists(ctx)
}

func (s *Service) Webforms(ctx context.Context) ([]models.Webform, error) {
	return s.store.ListWebforms(ctx)
}

func (s *Service) webform(ctx context.Context, id string) (*models.Webform, error) {
	w, err := s.store.GetWebform(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWebformNotFound, id)
	}
	return w, err
}

// WebformFields maps each titled element key of the webform to its title.
func (s *Service) WebformFields(ctx context.Context, id string) (map[string]string, error) {
	w, err := s.webform(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(w.Elements))
	for _, el := range titled(w.Elements) {
		fields[el.Key] = el.Title
	}
	return fields, nil
}

// latest returns the newest submission per webform and user. subs must be
// ordered oldest first.
func latest(subs []models.Submission) map[string]map[int64]models.Submission {
	out := make(map[string]map[int64]models.Submission)
	for _, sub := range subs {
		if out[sub.WebformID] == nil {
			out[sub.WebformID] = make(map[int64]models.Submission)
		}
		out[sub.WebformID][sub.UserID] = sub
	}
	return out
}

func titled(elements []models.WebformElement) []models.WebformElement {
	out := make([]models.WebformElement, 0, len(elements))
	for _, el := range elements {
		if strings.TrimSpace(el.Title) != "" {
			out = append(out, el)
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
