package db

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/david/pimm/internal/models"
)

// MemStore is an in-memory Repository. Values are copied on the way in and
// out so callers never share state with the store.
type MemStore struct {
	mu sync.RWMutex

	nextID        int64
	terms         map[int64]models.AwardTerm
	projects      map[int64]models.Project
	users         map[int64]models.User
	tracking      map[int64]models.TrackingEntry
	inviteeLists  map[int64]models.InviteeList
	webforms      map[string]models.Webform
	submissions   []models.Submission
	registrations map[int64]models.RegistrationList

	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		terms:         make(map[int64]models.AwardTerm),
		projects:      make(map[int64]models.Project),
		users:         make(map[int64]models.User),
		tracking:      make(map[int64]models.TrackingEntry),
		inviteeLists:  make(map[int64]models.InviteeList),
		webforms:      make(map[string]models.Webform),
		registrations: make(map[int64]models.RegistrationList),
		now:           time.Now,
	}
}

func (m *MemStore) Close() {}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) FindAwardTerm(_ context.Context, name string) (*models.AwardTerm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.terms {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("find award term %q: %w", name, ErrNotFound)
}

func (m *MemStore) CreateAwardTerm(_ context.Context, name string) (*models.AwardTerm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.terms {
		if t.Name == name {
			return nil, fmt.Errorf("create award term %q: %w", name, ErrConflict)
		}
	}
	t := models.AwardTerm{ID: m.id(), Name: name}
	m.terms[t.ID] = t
	return &t, nil
}

func copyProject(p models.Project) models.Project {
	p.CoPIUserIDs = slices.Clone(p.CoPIUserIDs)
	p.CoreAreas = slices.Clone(p.CoreAreas)
	p.Keywords = slices.Clone(p.Keywords)
	p.Tags = slices.Clone(p.Tags)
	if p.AwardTermID != nil {
		v := *p.AwardTermID
		p.AwardTermID = &v
	}
	if p.LeadPIUserID != nil {
		v := *p.LeadPIUserID
		p.LeadPIUserID = &v
	}
	if p.PerformanceStart != nil {
		v := *p.PerformanceStart
		p.PerformanceStart = &v
	}
	if p.PerformanceEnd != nil {
		v := *p.PerformanceEnd
		p.PerformanceEnd = &v
	}
	return p
}

// withAwardNumber fills the denormalized award label the way the SQL join does.
func (m *MemStore) withAwardNumber(p models.Project) *models.Project {
	out := copyProject(p)
	out.AwardNumber = ""
	if out.AwardTermID != nil {
		out.AwardNumber = m.terms[*out.AwardTermID].Name
	}
	return &out
}

func (m *MemStore) GetProject(_ context.Context, id int64) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project %d: %w", id, ErrNotFound)
	}
	return m.withAwardNumber(p), nil
}

func (m *MemStore) FindProjectByAwardTerm(_ context.Context, termID int64) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range slices.Sorted(maps.Keys(m.projects)) {
		p := m.projects[id]
		if p.AwardTermID != nil && *p.AwardTermID == termID {
			return m.withAwardNumber(p), nil
		}
	}
	return nil, fmt.Errorf("find project by award term %d: %w", termID, ErrNotFound)
}

func (m *MemStore) checkAwardTermFree(p *models.Project) error {
	if p.AwardTermID == nil {
		return nil
	}
	for _, other := range m.projects {
		if other.ID != p.ID && other.AwardTermID != nil && *other.AwardTermID == *p.AwardTermID {
			return fmt.Errorf("award term %d already has project %d: %w", *p.AwardTermID, other.ID, ErrConflict)
		}
	}
	return nil
}

func (m *MemStore) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAwardTermFree(p); err != nil {
		return err
	}
	now := m.now()
	p.ID = m.id()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.projects[p.ID] = copyProject(*p)
	return nil
}

func (m *MemStore) UpdateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[p.ID]
	if !ok {
		return fmt.Errorf("update project %d: %w", p.ID, ErrNotFound)
	}
	if err := m.checkAwardTermFree(p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.now()
	m.projects[p.ID] = copyProject(*p)
	return nil
}

func (m *MemStore) ListProjects(_ context.Context) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Project, 0, len(m.projects))
	for _, id := range slices.Sorted(maps.Keys(m.projects)) {
		out = append(out, *m.withAwardNumber(m.projects[id]))
	}
	return out, nil
}

func (m *MemStore) ListProjectIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.projects)), nil
}

func (m *MemStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %d: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (m *MemStore) GetUsers(_ context.Context, ids []int64) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var out []models.User
	for _, id := range sorted {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemStore) FindUserByName(_ context.Context, name string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Name == name {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("find user %q: %w", name, ErrNotFound)
}

func (m *MemStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range slices.Sorted(maps.Keys(m.users)) {
		u := m.users[id]
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("find user by email: %w", ErrNotFound)
}

func (m *MemStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Name == u.Name {
			return fmt.Errorf("create user %q: %w", u.Name, ErrConflict)
		}
	}
	u.ID = m.id()
	u.CreatedAt = m.now()
	m.users[u.ID] = *u
	return nil
}

func (m *MemStore) InsertTracking(_ context.Context, e *models.TrackingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[e.ProjectID]; !ok {
		return fmt.Errorf("insert tracking: project %d: %w", e.ProjectID, ErrNotFound)
	}
	if _, ok := m.tracking[e.ProjectID]; ok {
		return fmt.Errorf("insert tracking %d: %w", e.ProjectID, ErrConflict)
	}
	e.ID = m.id()
	m.tracking[e.ProjectID] = *e
	return nil
}

func (m *MemStore) GetTracking(_ context.Context, nid int64) (*models.TrackingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tracking[nid]
	if !ok {
		return nil, fmt.Errorf("get tracking %d: %w", nid, ErrNotFound)
	}
	return &e, nil
}

func (m *MemStore) UpdateTracking(_ context.Context, nid int64, status models.TrackingStatus, notes *string, updated time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tracking[nid]
	if !ok {
		return fmt.Errorf("update tracking %d: %w", nid, ErrNotFound)
	}
	e.Status = status
	if notes != nil {
		e.Notes = *notes
	}
	e.Updated = &updated
	m.tracking[nid] = e
	return nil
}

func (m *MemStore) DeleteTracking(_ context.Context, nid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracking[nid]; !ok {
		return fmt.Errorf("delete tracking %d: %w", nid, ErrNotFound)
	}
	delete(m.tracking, nid)
	return nil
}

func (m *MemStore) ListTracking(_ context.Context, q TrackingQuery) ([]models.TrackingEntry, error) {
	m.mu.RLock()
	var out []models.TrackingEntry
	for _, e := range m.tracking {
		if q.Status == "" || e.Status == q.Status {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	col, asc := q.orderBy()
	sort.SliceStable(out, func(i, j int) bool {
		c := compareTracking(out[i], out[j], col)
		if c == 0 {
			c = cmpInt64(out[i].ID, out[j].ID)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
	return out, nil
}

func compareTracking(a, b models.TrackingEntry, col string) int {
	switch col {
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "notes":
		return strings.Compare(a.Notes, b.Notes)
	case "updated":
		var at, bt time.Time
		if a.Updated != nil {
			at = *a.Updated
		}
		if b.Updated != nil {
			bt = *b.Updated
		}
		return at.Compare(bt)
	default:
		return a.AddedDate.Compare(b.AddedDate)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (m *MemStore) TrackedProjectIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.tracking)), nil
}

func (m *MemStore) CountTracking(_ context.Context, status models.TrackingStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.tracking {
		if status == "" || e.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateInviteeList(_ context.Context, l *models.InviteeList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.id()
	l.CreatedAt = m.now()
	stored := *l
	stored.UserIDs = slices.Clone(l.UserIDs)
	m.inviteeLists[l.ID] = stored
	return nil
}

func (m *MemStore) GetInviteeList(_ context.Context, id int64) (*models.InviteeList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.inviteeLists[id]
	if !ok {
		return nil, fmt.Errorf("get invitee list %d: %w", id, ErrNotFound)
	}
	l.UserIDs = slices.Clone(l.UserIDs)
	return &l, nil
}

func (m *MemStore) SetInviteeListUsers(_ context.Context, id int64, userIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.inviteeLists[id]
	if !ok {
		return fmt.Errorf("update invitee list %d: %w", id, ErrNotFound)
	}
	l.UserIDs = slices.Clone(userIDs)
	m.inviteeLists[id] = l
	return nil
}

func (m *MemStore) ListInviteeLists(_ context.Context) ([]models.InviteeList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(m.inviteeLists))
	slices.Reverse(ids)
	out := make([]models.InviteeList, 0, len(ids))
	for _, id := range ids {
		l := m.inviteeLists[id]
		l.UserIDs = slices.Clone(l.UserIDs)
		out = append(out, l)
	}
	return out, nil
}

func copyWebform(w models.Webform) models.Webform {
	w.Elements = slices.Clone(w.Elements)
	return w
}

func (m *MemStore) CreateWebform(_ context.Context, w *models.Webform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webforms[w.ID]; ok {
		return fmt.Errorf("create webform %q: %w", w.ID, ErrConflict)
	}
	m.webforms[w.ID] = copyWebform(*w)
	return nil
}

func (m *MemStore) GetWebform(_ context.Context, id string) (*models.Webform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.webforms[id]
	if !ok {
		return nil, fmt.Errorf("get webform %q: %w", id, ErrNotFound)
	}
	w = copyWebform(w)
	return &w, nil
}

func (m *MemStore) ListWebforms(_ context.Context) ([]models.Webform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Webform, 0, len(m.webforms))
	for _, w := range m.webforms {
		out = append(out, copyWebform(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *MemStore) CreateSubmission(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webforms[s.WebformID]; !ok {
		return fmt.Errorf("create submission: webform %q: %w", s.WebformID, ErrNotFound)
	}
	s.ID = m.id()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	stored := *s
	stored.Data = maps.Clone(s.Data)
	m.submissions = append(m.submissions, stored)
	return nil
}

func (m *MemStore) ListSubmissions(_ context.Context, webformIDs []string, userIDs []int64) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Submission
	for _, s := range m.submissions {
		if slices.Contains(webformIDs, s.WebformID) && slices.Contains(userIDs, s.UserID) {
			s.Data = maps.Clone(s.Data)
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func copyRegistration(l models.RegistrationList) models.RegistrationList {
	l.WebformIDs = slices.Clone(l.WebformIDs)
	l.UserIDs = slices.Clone(l.UserIDs)
	return l
}

func (m *MemStore) CreateRegistrationList(_ context.Context, l *models.RegistrationList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inviteeLists[l.InviteeListID]; !ok {
		return fmt.Errorf("create registration list: invitee list %d: %w", l.InviteeListID, ErrNotFound)
	}
	l.ID = m.id()
	l.CreatedAt = m.now()
	m.registrations[l.ID] = copyRegistration(*l)
	return nil
}

func (m *MemStore) GetRegistrationList(_ context.Context, id int64) (*models.RegistrationList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.registrations[id]
	if !ok {
		return nil, fmt.Errorf("get registration list %d: %w", id, ErrNotFound)
	}
	l = copyRegistration(l)
	return &l, nil
}

func (m *MemStore) ListRegistrationLists(_ context.Context) ([]models.RegistrationList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(m.registrations))
	slices.Reverse(ids)
	out := make([]models.RegistrationList, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRegistration(m.registrations[id]))
	}
	return out, nil
}
