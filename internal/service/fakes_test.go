package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/cache"
	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/flows"
	"github.com/chatstack/routing-service/internal/repository"
)

// memStore is a shared in-memory backing store for the repository fakes,
// mirroring the database tables the services touch.
type memStore struct {
	mu sync.Mutex

	projects     map[string]*domain.Project
	sectors      map[string]*domain.Sector
	queues       map[string]*domain.Queue
	rooms        map[string]*domain.Room
	users        map[string]*domain.User
	contacts     map[string]*domain.Contact
	flowStarts   map[string]*domain.FlowStart
	messages     map[string]*domain.Message
	metrics      map[string]*domain.RoomMetrics
	permissions  map[string]*domain.ProjectPermission
	sectorAuths  map[string]*domain.SectorAuthorization
	queueAuths   map[string]*domain.QueueAuthorization
	customStatus map[string][]domain.CustomStatus
}

func newMemStore() *memStore {
	return &memStore{
		projects:     make(map[string]*domain.Project),
		sectors:      make(map[string]*domain.Sector),
		queues:       make(map[string]*domain.Queue),
		rooms:        make(map[string]*domain.Room),
		users:        make(map[string]*domain.User),
		contacts:     make(map[string]*domain.Contact),
		flowStarts:   make(map[string]*domain.FlowStart),
		messages:     make(map[string]*domain.Message),
		metrics:      make(map[string]*domain.RoomMetrics),
		permissions:  make(map[string]*domain.ProjectPermission),
		sectorAuths:  make(map[string]*domain.SectorAuthorization),
		queueAuths:   make(map[string]*domain.QueueAuthorization),
		customStatus: make(map[string][]domain.CustomStatus),
	}
}

func copyRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.TransferHistory = append([]domain.TransferEvent(nil), r.TransferHistory...)
	if r.CustomFields != nil {
		c.CustomFields = make(map[string]any, len(r.CustomFields))
		for k, v := range r.CustomFields {
			c.CustomFields[k] = v
		}
	}
	return &c
}

type fakeProjectRepo struct{ store *memStore }

func (f *fakeProjectRepo) Create(_ context.Context, p *domain.Project) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.projects[p.ID] = p
	return nil
}

func (f *fakeProjectRepo) GetByID(_ context.Context, id string) (*domain.Project, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p, ok := f.store.projects[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeProjectRepo) UpdateConfig(_ context.Context, id string, cfg map[string]any) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p, ok := f.store.projects[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Config = cfg
	return nil
}

type fakeSectorRepo struct{ store *memStore }

func (f *fakeSectorRepo) Create(_ context.Context, s *domain.Sector) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.sectors[s.ID] = s
	return nil
}

func (f *fakeSectorRepo) Update(_ context.Context, s *domain.Sector) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if existing, ok := f.store.sectors[s.ID]; !ok || existing.IsDeleted {
		return pgx.ErrNoRows
	}
	f.store.sectors[s.ID] = s
	return nil
}

func (f *fakeSectorRepo) SoftDelete(_ context.Context, id, _ string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if s, ok := f.store.sectors[id]; ok {
		s.IsDeleted = true
	}
	return nil
}

func (f *fakeSectorRepo) GetByID(_ context.Context, id string) (*domain.Sector, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	s, ok := f.store.sectors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeSectorRepo) ListByProject(_ context.Context, projectID string) ([]domain.Sector, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Sector
	for _, s := range f.store.sectors {
		if s.ProjectID == projectID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeQueueRepo struct{ store *memStore }

func (f *fakeQueueRepo) Create(_ context.Context, q *domain.Queue) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.queues[q.ID] = q
	return nil
}

func (f *fakeQueueRepo) Update(_ context.Context, q *domain.Queue) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.queues[q.ID] = q
	return nil
}

func (f *fakeQueueRepo) SoftDelete(_ context.Context, id, actor string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	q, ok := f.store.queues[id]
	if !ok {
		return pgx.ErrNoRows
	}
	q.Name = q.DeletedName(actor)
	q.IsDeleted = true
	return nil
}

func (f *fakeQueueRepo) GetByID(_ context.Context, id string) (*domain.Queue, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	q, ok := f.store.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return q, nil
}

func (f *fakeQueueRepo) ListBySector(_ context.Context, sectorID string) ([]domain.Queue, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Queue
	for _, q := range f.store.queues {
		if q.SectorID == sectorID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) CountActiveRooms(_ context.Context, queueID string) (int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	count := 0
	for _, r := range f.store.rooms {
		if r.QueueID == queueID && r.IsActive {
			count++
		}
	}
	return count, nil
}

type fakeRoomRepo struct{ store *memStore }

func (f *fakeRoomRepo) Create(_ context.Context, r *domain.Room) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, existing := range f.store.rooms {
		if existing.IsActive && existing.ContactID == r.ContactID && existing.QueueID == r.QueueID {
			return pgx.ErrTooManyRows
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	f.store.rooms[r.ID] = copyRoom(r)
	return nil
}

func (f *fakeRoomRepo) Update(_ context.Context, r *domain.Room) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if _, ok := f.store.rooms[r.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.store.rooms[r.ID] = copyRoom(r)
	return nil
}

func (f *fakeRoomRepo) GetByID(_ context.Context, id string) (*domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r, ok := f.store.rooms[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyRoom(r), nil
}

func (f *fakeRoomRepo) GetByTicket(_ context.Context, ticket string) (*domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, r := range f.store.rooms {
		if r.TicketUUID != nil && *r.TicketUUID == ticket {
			return copyRoom(r), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeRoomRepo) GetActiveByContactQueue(_ context.Context, contactID, queueID string) (*domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, r := range f.store.rooms {
		if r.IsActive && r.ContactID == contactID && r.QueueID == queueID {
			return copyRoom(r), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeRoomRepo) ListActiveUnassigned(_ context.Context, queueID string) ([]domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Room
	for _, r := range f.store.rooms {
		if r.IsActive && r.QueueID == queueID && !r.Assigned() {
			out = append(out, *copyRoom(r))
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].AddedToQueueAt != nil && out[i].AddedToQueueAt != nil &&
				out[j].AddedToQueueAt.Before(*out[i].AddedToQueueAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeRoomRepo) ListActiveByUserProject(ctx context.Context, userID, projectID string) ([]domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Room
	for _, r := range f.store.rooms {
		if r.IsActive && r.UserID != nil && *r.UserID == userID && f.projectOf(r) == projectID {
			out = append(out, *copyRoom(r))
		}
	}
	return out, nil
}

func (f *fakeRoomRepo) ListActiveByUserSector(_ context.Context, userID, sectorID string) ([]domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Room
	for _, r := range f.store.rooms {
		if r.IsActive && r.UserID != nil && *r.UserID == userID {
			if q, ok := f.store.queues[r.QueueID]; ok && q.SectorID == sectorID {
				out = append(out, *copyRoom(r))
			}
		}
	}
	return out, nil
}

func (f *fakeRoomRepo) ListActiveByUserQueue(_ context.Context, userID, queueID string) ([]domain.Room, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Room
	for _, r := range f.store.rooms {
		if r.IsActive && r.UserID != nil && *r.UserID == userID && r.QueueID == queueID {
			out = append(out, *copyRoom(r))
		}
	}
	return out, nil
}

func (f *fakeRoomRepo) CountActiveBySectorUser(_ context.Context, sectorID, userID string) (int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	count := 0
	for _, r := range f.store.rooms {
		if r.IsActive && r.UserID != nil && *r.UserID == userID {
			if q, ok := f.store.queues[r.QueueID]; ok && q.SectorID == sectorID {
				count++
			}
		}
	}
	return count, nil
}

func (f *fakeRoomRepo) CountClosedSinceByUser(_ context.Context, projectID, userID string, since time.Time) (int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	count := 0
	for _, r := range f.store.rooms {
		if !r.IsActive && r.UserID != nil && *r.UserID == userID &&
			r.EndedAt != nil && !r.EndedAt.Before(since) && f.projectOf(r) == projectID {
			count++
		}
	}
	return count, nil
}

// Assign mirrors the SKIP LOCKED claim: it wins only when the room is
// still active and unassigned.
func (f *fakeRoomRepo) Assign(_ context.Context, roomID, userID string, at time.Time) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r, ok := f.store.rooms[roomID]
	if !ok || !r.IsActive || r.Assigned() {
		return false, nil
	}
	r.UserID = &userID
	if r.FirstUserAssignedAt == nil {
		r.FirstUserAssignedAt = &at
	}
	return true, nil
}

// projectOf resolves a room's project through its queue and sector.
// Callers hold the store lock.
func (f *fakeRoomRepo) projectOf(r *domain.Room) string {
	q, ok := f.store.queues[r.QueueID]
	if !ok {
		return ""
	}
	s, ok := f.store.sectors[q.SectorID]
	if !ok {
		return ""
	}
	return s.ProjectID
}

type fakePermissionRepo struct{ store *memStore }

func (f *fakePermissionRepo) Create(_ context.Context, p *domain.ProjectPermission) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.permissions[p.ID] = p
	return nil
}

func (f *fakePermissionRepo) Update(_ context.Context, p *domain.ProjectPermission) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.permissions[p.ID] = p
	return nil
}

func (f *fakePermissionRepo) Delete(_ context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	delete(f.store.permissions, id)
	return nil
}

func (f *fakePermissionRepo) GetByID(_ context.Context, id string) (*domain.ProjectPermission, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p, ok := f.store.permissions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *p
	return &c, nil
}

func (f *fakePermissionRepo) GetByProjectUser(_ context.Context, projectID, userID string) (*domain.ProjectPermission, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, p := range f.store.permissions {
		if p.ProjectID == projectID && p.UserID == userID {
			c := *p
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakePermissionRepo) ListByProject(_ context.Context, projectID string) ([]domain.ProjectPermission, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.ProjectPermission
	for _, p := range f.store.permissions {
		if p.ProjectID == projectID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePermissionRepo) UpdateStatus(_ context.Context, id string, status domain.PresenceStatus, seenAt time.Time) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p, ok := f.store.permissions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if p.LastSeenAt.After(seenAt) {
		return nil
	}
	p.Status = status
	p.LastSeenAt = seenAt
	return nil
}

type fakeSectorAuthRepo struct{ store *memStore }

func (f *fakeSectorAuthRepo) Create(_ context.Context, a *domain.SectorAuthorization) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.sectorAuths[a.ID] = a
	return nil
}

func (f *fakeSectorAuthRepo) Delete(_ context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	delete(f.store.sectorAuths, id)
	return nil
}

func (f *fakeSectorAuthRepo) GetByID(_ context.Context, id string) (*domain.SectorAuthorization, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	a, ok := f.store.sectorAuths[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeSectorAuthRepo) ListByPermission(_ context.Context, permissionID string) ([]domain.SectorAuthorization, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.SectorAuthorization
	for _, a := range f.store.sectorAuths {
		if a.PermissionID == permissionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeQueueAuthRepo struct{ store *memStore }

func (f *fakeQueueAuthRepo) Create(_ context.Context, a *domain.QueueAuthorization) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.queueAuths[a.ID] = a
	return nil
}

func (f *fakeQueueAuthRepo) Delete(_ context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	delete(f.store.queueAuths, id)
	return nil
}

func (f *fakeQueueAuthRepo) GetByID(_ context.Context, id string) (*domain.QueueAuthorization, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	a, ok := f.store.queueAuths[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeQueueAuthRepo) GetByPermissionQueue(_ context.Context, permissionID, queueID string) (*domain.QueueAuthorization, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, a := range f.store.queueAuths {
		if a.PermissionID == permissionID && a.QueueID == queueID {
			return a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeQueueAuthRepo) ListByQueue(_ context.Context, queueID, role string) ([]domain.QueueAuthorization, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.QueueAuthorization
	for _, a := range f.store.queueAuths {
		if a.QueueID == queueID && a.Role == role {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeQueueAuthRepo) ListByPermission(_ context.Context, permissionID string) ([]domain.QueueAuthorization, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.QueueAuthorization
	for _, a := range f.store.queueAuths {
		if a.PermissionID == permissionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeCustomStatusRepo struct{ store *memStore }

func (f *fakeCustomStatusRepo) ListActiveByPermission(_ context.Context, permissionID string) ([]domain.CustomStatus, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.CustomStatus
	for _, st := range f.store.customStatus[permissionID] {
		if st.IsActive {
			out = append(out, st)
		}
	}
	return out, nil
}

type fakeUserRepo struct{ store *memStore }

func (f *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, u *domain.User) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	delete(f.store.users, id)
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	u, ok := f.store.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, u := range f.store.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeContactRepo struct{ store *memStore }

func (f *fakeContactRepo) GetByID(_ context.Context, id string) (*domain.Contact, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	c, ok := f.store.contacts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeContactRepo) GetOrCreate(_ context.Context, externalID, name string) (*domain.Contact, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, c := range f.store.contacts {
		if c.ExternalID == externalID {
			return c, nil
		}
	}
	c := &domain.Contact{ID: uuid.NewString(), ExternalID: externalID, Name: name, CreatedAt: time.Now()}
	f.store.contacts[c.ID] = c
	return c, nil
}

type fakeFlowStartRepo struct{ store *memStore }

func (f *fakeFlowStartRepo) Create(_ context.Context, fs *domain.FlowStart) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.flowStarts[fs.ID] = fs
	return nil
}

func (f *fakeFlowStartRepo) GetActiveByFlowUUID(_ context.Context, flowUUID string) (*domain.FlowStart, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, fs := range f.store.flowStarts {
		if fs.FlowUUID == flowUUID && fs.IsActive {
			return fs, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeFlowStartRepo) BindRoom(_ context.Context, id, roomID string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if fs, ok := f.store.flowStarts[id]; ok {
		fs.RoomID = &roomID
	}
	return nil
}

func (f *fakeFlowStartRepo) Deactivate(_ context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if fs, ok := f.store.flowStarts[id]; ok {
		fs.IsActive = false
	}
	return nil
}

type fakeMessageRepo struct{ store *memStore }

func (f *fakeMessageRepo) Create(_ context.Context, m *domain.Message) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.messages[m.ID] = m
	if r, ok := f.store.rooms[m.RoomID]; ok {
		r.LastMessage = m.Snapshot()
	}
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id string) (*domain.Message, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	m, ok := f.store.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m, nil
}

func (f *fakeMessageRepo) ListByRoom(_ context.Context, roomID string) ([]domain.Message, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Message
	for _, m := range f.store.messages {
		if m.RoomID == roomID {
			out = append(out, *m)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) ||
				(out[j].CreatedAt.Equal(out[i].CreatedAt) && out[j].ID < out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) BindExternalID(_ context.Context, messageID, externalID string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	m, ok := f.store.messages[messageID]
	if !ok {
		return pgx.ErrNoRows
	}
	m.ExternalID = &externalID
	return nil
}

func (f *fakeMessageRepo) BulkUpdateStatus(_ context.Context, updates []repository.StatusUpdate) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, update := range updates {
		for _, m := range f.store.messages {
			if m.ExternalID != nil && *m.ExternalID == update.ExternalID {
				m.Status = update.Status
			}
		}
	}
	return nil
}

type fakeMetricsRepo struct{ store *memStore }

func (f *fakeMetricsRepo) Create(_ context.Context, m *domain.RoomMetrics) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.metrics[m.RoomID] = m
	return nil
}

func (f *fakeMetricsRepo) GetByRoom(_ context.Context, roomID string) (*domain.RoomMetrics, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	m, ok := f.store.metrics[roomID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *m
	return &c, nil
}

func (f *fakeMetricsRepo) IncrementTransferCount(_ context.Context, roomID string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if m, ok := f.store.metrics[roomID]; ok {
		m.TransferCount++
	}
	return nil
}

func (f *fakeMetricsRepo) IncrementQueuedCount(_ context.Context, roomID string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if m, ok := f.store.metrics[roomID]; ok {
		m.QueuedCount++
	}
	return nil
}

func (f *fakeMetricsRepo) SetWaitingTime(_ context.Context, roomID string, seconds int64) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if m, ok := f.store.metrics[roomID]; ok {
		m.WaitingTime = seconds
	}
	return nil
}

func (f *fakeMetricsRepo) Finalize(_ context.Context, m *domain.RoomMetrics) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	existing, ok := f.store.metrics[m.RoomID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if existing.InteractionTime > 0 {
		return false, nil
	}
	*existing = *m
	return true, nil
}

func (f *fakeMetricsRepo) ListPendingFinalization(_ context.Context, limit int) ([]string, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []string
	for roomID, m := range f.store.metrics {
		if m.InteractionTime > 0 {
			continue
		}
		if r, ok := f.store.rooms[roomID]; ok && !r.IsActive {
			out = append(out, roomID)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeDashboardCache honors the project-tag contract: every Set is
// recorded under its project so InvalidateProject drops it.
type fakeDashboardCache struct {
	mu            sync.Mutex
	entries       map[string][]byte
	projects      map[string]map[string]bool
	invalidations []string
}

func (f *fakeDashboardCache) Get(_ context.Context, filter any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.entries[cache.FilterKey(filter)]
	if !ok {
		return nil, cache.ErrMiss
	}
	return raw, nil
}

func (f *fakeDashboardCache) Set(_ context.Context, projectID string, filter any, payload []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string][]byte)
		f.projects = make(map[string]map[string]bool)
	}
	key := cache.FilterKey(filter)
	f.entries[key] = payload
	if f.projects[projectID] == nil {
		f.projects[projectID] = make(map[string]bool)
	}
	f.projects[projectID][key] = true
	return nil
}

func (f *fakeDashboardCache) InvalidateProject(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations = append(f.invalidations, projectID)
	for key := range f.projects[projectID] {
		delete(f.entries, key)
	}
	delete(f.projects, projectID)
	return nil
}

func (f *fakeDashboardCache) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeDashboardCache) invalidated(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.invalidations {
		if id == projectID {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
}

type publishedMessage struct {
	Exchange   string
	RoutingKey string
	Payload    any
}

func (p *fakePublisher) Publish(_ context.Context, exchange, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedMessage{Exchange: exchange, RoutingKey: routingKey, Payload: payload})
	return nil
}

func (p *fakePublisher) toExchange(exchange string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMessage
	for _, m := range p.published {
		if m.Exchange == exchange {
			out = append(out, m)
		}
	}
	return out
}

type eventRecorder struct {
	mu       sync.Mutex
	recorded []events.Event
}

func (r *eventRecorder) record(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, ev)
	return nil
}

func (r *eventRecorder) attach(d events.Dispatcher) {
	for _, t := range []events.EventType{
		events.EventRoomCreated, events.EventRoomUpdated, events.EventRoomClosed,
		events.EventRoomTransferred, events.EventMessageCreated,
		events.EventQueueChanged, events.EventPermissionChanged,
	} {
		d.Subscribe(t, r.record)
	}
}

func (r *eventRecorder) byType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.recorded {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// testEnv wires the full service graph over the in-memory store.
type testEnv struct {
	store       *memStore
	events      *eventRecorder
	publisher   *fakePublisher
	dashboards  *fakeDashboardCache
	routing     *RoutingService
	rooms       *RoomService
	permissions *PermissionService
	metrics     *MetricsService
}

func newTestEnv() *testEnv {
	return newTestEnvWithFlows(nil)
}

func newTestEnvWithFlows(flowClient *flows.Client) *testEnv {
	return newTestEnvWithConfig(flowClient, config.RoutingConfig{BulkCloseChunkSize: 200})
}

func newTestEnvWithConfig(flowClient *flows.Client, routingCfg config.RoutingConfig) *testEnv {
	store := newMemStore()
	dispatcher := events.NewInMemoryDispatcher()
	recorder := &eventRecorder{}
	recorder.attach(dispatcher)
	publisher := &fakePublisher{}
	dashboards := &fakeDashboardCache{}
	logger := zap.NewNop()

	roomRepo := &fakeRoomRepo{store: store}
	queueRepo := &fakeQueueRepo{store: store}
	sectorRepo := &fakeSectorRepo{store: store}
	projectRepo := &fakeProjectRepo{store: store}
	permissionRepo := &fakePermissionRepo{store: store}
	queueAuthRepo := &fakeQueueAuthRepo{store: store}
	sectorAuthRepo := &fakeSectorAuthRepo{store: store}

	routing := NewRoutingService(RoutingDependencies{
		ProjectRepo:      projectRepo,
		SectorRepo:       sectorRepo,
		QueueRepo:        queueRepo,
		RoomRepo:         roomRepo,
		PermissionRepo:   permissionRepo,
		QueueAuthRepo:    queueAuthRepo,
		CustomStatusRepo: &fakeCustomStatusRepo{store: store},
		UserRepo:         &fakeUserRepo{store: store},
		Dashboards:       dashboards,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	rooms := NewRoomService(RoomDependencies{
		RoomRepo:       roomRepo,
		QueueRepo:      queueRepo,
		SectorRepo:     sectorRepo,
		ProjectRepo:    projectRepo,
		ContactRepo:    &fakeContactRepo{store: store},
		FlowStartRepo:  &fakeFlowStartRepo{store: store},
		MessageRepo:    &fakeMessageRepo{store: store},
		MetricsRepo:    &fakeMetricsRepo{store: store},
		PermissionRepo: permissionRepo,
		QueueAuthRepo:  queueAuthRepo,
		Routing:        routing,
		Dispatcher:     dispatcher,
		Publisher:      publisher,
		FlowClient:     flowClient,
		Dashboards:     dashboards,
		RoutingCfg:     routingCfg,
		AMQPCfg:        config.AMQPConfig{RoomsInfoExchange: "chats.rooms-info"},
		Logger:         logger,
	})
	permissions := NewPermissionService(PermissionDependencies{
		PermissionRepo: permissionRepo,
		SectorAuthRepo: sectorAuthRepo,
		QueueAuthRepo:  queueAuthRepo,
		RoomRepo:       roomRepo,
		RoomService:    rooms,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	metrics := NewMetricsService(&fakeMetricsRepo{store: store}, roomRepo, &fakeMessageRepo{store: store}, logger)

	return &testEnv{
		store:       store,
		events:      recorder,
		publisher:   publisher,
		dashboards:  dashboards,
		routing:     routing,
		rooms:       rooms,
		permissions: permissions,
		metrics:     metrics,
	}
}

// room reads a room back from the store.
func (e *testEnv) room(t *testing.T, id string) *domain.Room {
	t.Helper()
	r, err := (&fakeRoomRepo{store: e.store}).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get room %s: %v", id, err)
	}
	return r
}

// seedQueue creates a project, sector and queue that accept rooms at any
// hour, returning the queue.
func (e *testEnv) seedQueue(policy domain.RoutingPolicy, roomsLimit int) *domain.Queue {
	project := &domain.Project{ID: uuid.NewString(), Name: "acme", RoutingPolicy: policy}
	sector := &domain.Sector{
		ID:         uuid.NewString(),
		ProjectID:  project.ID,
		Name:       "support",
		RoomsLimit: roomsLimit,
		WorkingHours: domain.WorkingHours{
			OpenInOffHours: true,
		},
	}
	queue := &domain.Queue{ID: uuid.NewString(), SectorID: sector.ID, Name: "general"}
	e.store.mu.Lock()
	e.store.projects[project.ID] = project
	e.store.sectors[sector.ID] = sector
	e.store.queues[queue.ID] = queue
	e.store.mu.Unlock()
	return queue
}

// seedAgent creates a user with an online project permission and an agent
// authorization on the queue, returning the permission.
func (e *testEnv) seedAgent(queue *domain.Queue, status domain.PresenceStatus) *domain.ProjectPermission {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	sector := e.store.sectors[queue.SectorID]
	user := &domain.User{ID: uuid.NewString(), Email: uuid.NewString() + "@acme.test"}
	perm := &domain.ProjectPermission{
		ID:        uuid.NewString(),
		ProjectID: sector.ProjectID,
		UserID:    user.ID,
		Role:      domain.RoleAttendant,
		Status:    status,
	}
	auth := &domain.QueueAuthorization{
		ID:           uuid.NewString(),
		QueueID:      queue.ID,
		PermissionID: perm.ID,
		Role:         domain.ScopeRoleAgent,
	}
	e.store.users[user.ID] = user
	e.store.permissions[perm.ID] = perm
	e.store.queueAuths[auth.ID] = auth
	return perm
}

// seedRoom creates an active unassigned room waiting on the queue.
func (e *testEnv) seedRoom(queue *domain.Queue) *domain.Room {
	now := time.Now().UTC()
	contact := &domain.Contact{ID: uuid.NewString(), ExternalID: uuid.NewString(), Name: "contact"}
	room := &domain.Room{
		ID:             uuid.NewString(),
		QueueID:        queue.ID,
		ContactID:      contact.ID,
		URN:            "whatsapp:5521",
		IsActive:       true,
		CreatedAt:      now,
		AddedToQueueAt: &now,
	}
	e.store.mu.Lock()
	e.store.contacts[contact.ID] = contact
	e.store.rooms[room.ID] = room
	e.store.metrics[room.ID] = &domain.RoomMetrics{ID: uuid.NewString(), RoomID: room.ID, QueuedCount: 1}
	e.store.mu.Unlock()
	return copyRoom(room)
}
