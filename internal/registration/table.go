package registration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

// Table lists the latest submission of each registrant for one webform.
type Table struct {
	WebformID string     `json:"webform_id"`
	Caption   string     `json:"caption"`
	Header    []string   `json:"header"`
	Keys      []string   `json:"keys"`
	Rows      [][]string `json:"rows"`
	Empty     string     `json:"empty,omitempty"`
}

type View struct {
	List   *models.RegistrationList `json:"list"`
	Tables []Table                  `json:"tables"`
	Users  int                      `json:"users_count"`
}

// Sort orders the rows of one webform's table by an element key. An empty
// WebformID applies the key to every table that has it.
type Sort struct {
	WebformID string
	Key       string
}

// View builds one table per webform of the list.
func (s *Service) View(ctx context.Context, id int64, order Sort) (*View, error) {
	list, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.WebformID != "" && !slices.Contains(list.WebformIDs, order.WebformID) {
		return nil, fmt.Errorf("%w: %s is not part of the list", ErrWebformNotFound, order.WebformID)
	}

	users, err := s.users(ctx, list.UserIDs)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubmissions(ctx, list.WebformIDs, list.UserIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	byForm := latest(subs)

	v := &View{List: list, Tables: []Table{}, Users: len(users)}
	for _, wid := range list.WebformIDs {
		w, err := s.webform(ctx, wid)
		if err != nil {
			return nil, err
		}
		t := buildTable(w, users, byForm[wid])
		if order.Key != "" && (order.WebformID == "" || order.WebformID == wid) {
			if err := t.sortBy(order.Key); err != nil && order.WebformID != "" {
				return nil, err
			}
		}
		v.Tables = append(v.Tables, t)
	}
	return v, nil
}

func buildTable(w *models.Webform, users []models.User, subs map[int64]models.Submission) Table {
	elements := titled(w.Elements)
	t := Table{
		WebformID: w.ID,
		Caption:   "Submissions for " + w.Title,
		Header:    []string{"User ID", "Name"},
		Keys:      make([]string, 0, len(elements)),
		Rows:      [][]string{},
	}
	for _, el := range elements {
		t.Header = append(t.Header, el.Title)
		t.Keys = append(t.Keys, el.Key)
	}
	for _, u := range users {
		sub, ok := subs[u.ID]
		if !ok {
			continue
		}
		row := []string{strconv.FormatInt(u.ID, 10), u.Name}
		for _, el := range elements {
			row = append(row, sub.Data[el.Key])
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		t.Empty = "No submissions found for " + w.Title
	}
	return t
}

func (t *Table) sortBy(key string) error {
	col := -1
	for i, k := range t.Keys {
		if k == key {
			col = i + 2
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return compareCells(t.Rows[i][col], t.Rows[j][col]) < 0
	})
	return nil
}

// compareCells orders numerically when both values are numbers.
func compareCells(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

type SubmissionField struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Value string `json:"value"`
}

type UserSubmission struct {
	WebformID string            `json:"webform_id"`
	Webform   string            `json:"webform"`
	Created   time.Time         `json:"created"`
	Fields    []SubmissionField `json:"fields"`
}

type UserSubmissions struct {
	User        models.User      `json:"user"`
	Submissions []UserSubmission `json:"submissions"`
}

// UserSubmissions returns the latest submission of the user for each
// webform of the list.
func (s *Service) UserSubmissions(ctx context.Context, listID, userID int64) (*UserSubmissions, error) {
	list, err := s.Get(ctx, listID)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	subs, err := s.store.ListSubmissions(ctx, list.WebformIDs, []int64{userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	byForm := latest(subs)

	out := &UserSubmissions{User: *u, Submissions: []UserSubmission{}}
	for _, wid := range list.WebformIDs {
		sub, ok := byForm[wid][userID]
		if !ok {
			continue
		}
		w, err := s.webform(ctx, wid)
		if err != nil {
			return nil, err
		}
		us := UserSubmission{WebformID: wid, Webform: w.Title, Created: sub.CreatedAt, Fields: []SubmissionField{}}
		for _, el := range titled(w.Elements) {
			us.Fields = append(us.Fields, SubmissionField{Key: el.Key, Title: el.Title, Value: sub.Data[el.Key]})
		}
		out.Submissions = append(out.Submissions, us)
	}
	return out, nil
}

const (
	StatusSubmitted = "Submitted"
	StatusPending   = "Pending"
)

// Registrant is a list member with the webforms they submitted.
type Registrant struct {
	UserID        int64      `json:"user_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Status        string     `json:"status"`
	Count         int        `json:"count"`
	LastSubmitted *time.Time `json:"last_submitted,omitempty"`
	Submitted     []string   `json:"submitted"`
	Missing       []string   `json:"missing"`
}

// Registrants reports, per user on the list, which of its webforms have a
// submission.
func (s *Service) Registrants(ctx context.Context, list *models.RegistrationList) ([]Registrant, error) {
	users, err := s.users(ctx, list.UserIDs)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubmissions(ctx, list.WebformIDs, list.UserIDs)
	if err != nil {
		return nil, err
	}
	byForm := latest(subs)
	counts := make(map[int64]int, len(users))
	last := make(map[int64]time.Time, len(users))
	for _, sub := range subs {
		counts[sub.UserID]++
		if sub.CreatedAt.After(last[sub.UserID]) {
			last[sub.UserID] = sub.CreatedAt
		}
	}

	out := make([]Registrant, 0, len(users))
	for _, u := range users {
		r := Registrant{
			UserID:    u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Status:    StatusPending,
			Count:     counts[u.ID],
			Submitted: []string{},
			Missing:   []string{},
		}
		if r.Count > 0 {
			at := last[u.ID]
			r.Status = StatusSubmitted
			r.LastSubmitted = &at
		}
		for _, wid := range list.WebformIDs {
			if _, ok := byForm[wid][u.ID]; ok {
				r.Submitted = append(r.Submitted, wid)
			} else {
				r.Missing = append(r.Missing, wid)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// users loads accounts in list order.
func (s *Service) users(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	found, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
