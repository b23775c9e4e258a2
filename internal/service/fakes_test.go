package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory stores standing in for the gorm repositories. They return
// gorm.ErrRecordNotFound so the service error translation is exercised.

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
	roles map[uuid.UUID]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[uuid.UUID]*model.User{}, roles: map[uuid.UUID]string{}}
}

func (f *fakeUsers) add(name, role string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &model.User{ID: id, Email: strings.ToLower(name) + "@example.com", FullName: name, Role: model.RoleUser}
	f.roles[id] = role
	return id
}

func (f *fakeUsers) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) List(_ context.Context, page pagination.Params) ([]model.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return window(out, page), int64(len(out)), nil
}

func (f *fakeUsers) Update(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

func (f *fakeUsers) GetRole(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return "", gorm.ErrRecordNotFound
	}
	if role, ok := f.roles[id]; ok {
		return role, nil
	}
	return f.users[id].Role, nil
}

func (f *fakeUsers) SetRole(_ context.Context, id uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[id] = role
	return nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]*model.Client
	projects map[uuid.UUID]*model.Project
	deleted  []uuid.UUID
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{clients: map[uuid.UUID]*model.Client{}, projects: map[uuid.UUID]*model.Project{}}
}

func (f *fakeCatalog) addProject(clientName, projectName string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	client := &model.Client{ID: uuid.New(), Name: clientName}
	for _, c := range f.clients {
		if c.Name == clientName {
			client = c
		}
	}
	f.clients[client.ID] = client
	p := &model.Project{ID: uuid.New(), ClientID: client.ID, Name: projectName}
	f.projects[p.ID] = p
	return p.ID
}

func (f *fakeCatalog) project(id uuid.UUID) *model.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil
	}
	c := *p
	c.Client = f.clients[p.ClientID]
	return &c
}

// clientRepo and projectRepo view the same catalog through each interface.
type clientRepo struct{ *fakeCatalog }
type projectRepo struct{ *fakeCatalog }

func (r clientRepo) Create(_ context.Context, c *model.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.New()
	cc := *c
	r.clients[c.ID] = &cc
	return nil
}

func (r clientRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cc := *c
	return &cc, nil
}

func (r clientRepo) List(_ context.Context) ([]model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r clientRepo) Update(_ context.Context, c *model.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc := *c
	r.clients[c.ID] = &cc
	return nil
}

func (r clientRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r clientRepo) CountProjects(_ context.Context, clientID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.projects {
		if p.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (r projectRepo) Create(_ context.Context, p *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	pp := *p
	pp.Client = nil
	r.projects[p.ID] = &pp
	return nil
}

func (r projectRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Project, error) {
	p := r.project(id)
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r projectRepo) List(_ context.Context, clientID *uuid.UUID) ([]model.Project, error) {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.projects))
	for id, p := range r.projects {
		if clientID == nil || p.ClientID == *clientID {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	out := make([]model.Project, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.project(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r projectRepo) Update(_ context.Context, p *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pp := *p
	pp.Client = nil
	r.projects[p.ID] = &pp
	return nil
}

func (r projectRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	r.deleted = append(r.deleted, id)
	return nil
}

// fakeEntries records every mutating call so tests can assert that nothing
// was written.
type fakeEntries struct {
	mu       sync.Mutex
	catalog  *fakeCatalog
	entries  map[uuid.UUID]*model.TimeEntry
	seq      int
	order    map[uuid.UUID]int
	creates  int
	updates  int
	deletes  []uuid.UUID
	failList error
}

func newFakeEntries(catalog *fakeCatalog) *fakeEntries {
	return &fakeEntries{catalog: catalog, entries: map[uuid.UUID]*model.TimeEntry{}, order: map[uuid.UUID]int{}}
}

func (f *fakeEntries) seed(userID, projectID uuid.UUID, date string, hours string, status model.EntryStatus) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, _ := time.Parse(dateLayout, date)
	e := &model.TimeEntry{
		ID:        uuid.New(),
		Date:      d,
		Hours:     mustDecimal(hours),
		ProjectID: projectID,
		UserID:    userID,
		Status:    status,
		Version:   1,
	}
	if status == model.StatusApproved {
		by := uuid.New()
		at := time.Now()
		e.ApprovedBy, e.ApprovedAt = &by, &at
	}
	f.seq++
	f.order[e.ID] = f.seq
	f.entries[e.ID] = e
	return e.ID
}

func (f *fakeEntries) get(id uuid.UUID) model.TimeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.entries[id]
}

func (f *fakeEntries) hydrate(e model.TimeEntry) model.TimeEntry {
	if f.catalog != nil {
		e.Project = f.catalog.project(e.ProjectID)
	}
	return e
}

func (f *fakeEntries) Create(_ context.Context, entry *model.TimeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.New()
	if entry.Version == 0 {
		entry.Version = 1
	}
	entry.CreatedAt = time.Now()
	e := *entry
	e.Project = nil
	f.seq++
	f.order[e.ID] = f.seq
	f.entries[e.ID] = &e
	f.creates++
	return nil
}

func (f *fakeEntries) FindByID(_ context.Context, id uuid.UUID) (*model.TimeEntry, error) {
	f.mu.Lock()
	e, ok := f.entries[id]
	var c model.TimeEntry
	if ok {
		c = *e
	}
	f.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c = f.hydrate(c)
	return &c, nil
}

func (f *fakeEntries) List(_ context.Context, filter repository.TimeEntryFilter) ([]model.TimeEntry, int64, error) {
	if f.failList != nil {
		return nil, 0, f.failList
	}
	f.mu.Lock()
	var out []model.TimeEntry
	for _, e := range f.entries {
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		if filter.ProjectID != nil && e.ProjectID != *filter.ProjectID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, e.Status) {
			continue
		}
		if filter.DateFrom != nil && e.Date.Before(dateOnly(*filter.DateFrom)) {
			continue
		}
		if filter.DateTo != nil && e.Date.After(dateOnly(*filter.DateTo)) {
			continue
		}
		out = append(out, *e)
	}
	order := f.order
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return order[out[i].ID] < order[out[j].ID]
	})
	f.mu.Unlock()

	result := make([]model.TimeEntry, 0, len(out))
	for _, e := range out {
		e = f.hydrate(e)
		if filter.ClientID != nil && (e.Project == nil || e.Project.ClientID != *filter.ClientID) {
			continue
		}
		result = append(result, e)
	}
	return result, int64(len(result)), nil
}

func (f *fakeEntries) Update(_ context.Context, entry *model.TimeEntry, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.entries[entry.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrStaleVersion
	}
	entry.Version = expectedVersion + 1
	e := *entry
	e.Project = nil
	f.entries[e.ID] = &e
	f.updates++
	return nil
}

func (f *fakeEntries) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeEntries) CountByProject(_ context.Context, projectID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, e := range f.entries {
		if e.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func containsStatus(list []model.EntryStatus, s model.EntryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeAudit struct {
	mu   sync.Mutex
	logs []model.AuditLog
}

func (f *fakeAudit) Log(_ context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeAudit) List(_ context.Context, filter repository.AuditFilter, page pagination.Params) ([]model.AuditLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditLog
	for _, l := range f.logs {
		if filter.EntityID != "" && l.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		out = append(out, l)
	}
	// logs are appended in order, so reversing gives newest first
	if !filter.OldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return window(out, page), int64(len(out)), nil
}

// window applies page the way pagination.Params.Scope does in SQL.
func window[T any](rows []T, page pagination.Params) []T {
	if page.All() {
		return rows
	}
	if page.Offset >= len(rows) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[page.Offset:end]
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Action)
	}
	return out
}

// fakeTx runs the function directly; fakes have no rollback.
type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type spySecurity struct {
	mu     sync.Mutex
	events []security.Event
}

func (s *spySecurity) LogEvent(e security.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *spySecurity) types() []security.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]security.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type spyPublisher struct {
	mu     sync.Mutex
	events []EntryEvent
}

func (p *spyPublisher) PublishEntryEvent(e EntryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

type spyRoles struct {
	mu      sync.Mutex
	changes []string
}

func (r *spyRoles) RoleChanged(userID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, userID+":"+role)
}

// fixture wires both entry services over shared fakes.
type fixture struct {
	users     *fakeUsers
	catalog   *fakeCatalog
	entries   *fakeEntries
	audit     *fakeAudit
	security  *spySecurity
	publisher *spyPublisher
	roles     *spyRoles
	timesheet *timeEntryService
	approvals *approvalService

	alice, bob, admin uuid.UUID
	project           uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		users:     newFakeUsers(),
		catalog:   newFakeCatalog(),
		audit:     &fakeAudit{},
		security:  &spySecurity{},
		publisher: &spyPublisher{},
		roles:     &spyRoles{},
	}
	f.entries = newFakeEntries(f.catalog)
	f.alice = f.users.add("Alice", model.RoleUser)
	f.bob = f.users.add("Bob", model.RoleUser)
	f.admin = f.users.add("Admin", model.RoleAdmin)
	f.project = f.catalog.addProject("Acme", "P1")

	f.timesheet = NewTimeEntryService(f.entries, projectRepo{f.catalog}, f.users, f.audit, fakeTx{}, f.security, f.publisher, nil).(*timeEntryService)
	f.approvals = NewApprovalService(f.entries, f.users, f.audit, fakeTx{}, f.security, f.publisher, nil, nil).(*approvalService)
	return f
}
