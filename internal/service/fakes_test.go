package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/persistence"
	"github.com/spec-kit/facility-desk/internal/queue"
	"github.com/spec-kit/facility-desk/internal/repository"
	"github.com/spec-kit/facility-desk/internal/worker"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngFile(name string, size int) UploadFile {
	data := make([]byte, size)
	copy(data, pngHeader)
	return UploadFile{FileName: name, ContentType: "image/png", Size: int64(size), Data: data}
}

type fakeRequestRepo struct {
	mu          sync.Mutex
	items       map[int64]*domain.Request
	history     []domain.RequestHistory
	nextID      int64
	nextComment int64
	nextAttach  int64
	// conflicts makes the next n Update calls fail with a version conflict.
	conflicts int
	createErr error
	updates   int
	clock     func() time.Time
	outbox    *fakeOutbox
}

func newFakeRequestRepo(clock func() time.Time) *fakeRequestRepo {
	return &fakeRequestRepo{
		items:  map[int64]*domain.Request{},
		clock:  clock,
		outbox: &fakeOutbox{clock: clock},
	}
}

func cloneRequest(r *domain.Request) *domain.Request {
	c := *r
	c.Expenses = append([]domain.Expense(nil), r.Expenses...)
	c.Comments = append([]domain.Comment(nil), r.Comments...)
	c.Attachments = append([]domain.Attachment(nil), r.Attachments...)
	if r.PerformerID != nil {
		c.PerformerID = int64Ptr(*r.PerformerID)
	}
	if r.OfficeID != nil {
		c.OfficeID = int64Ptr(*r.OfficeID)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (f *fakeRequestRepo) Create(_ context.Context, req *domain.Request, outbox []repository.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	req.ID = f.nextID
	req.Version = 1
	req.CreatedAt = f.clock()
	req.UpdatedAt = req.CreatedAt
	for i := range req.Attachments {
		f.nextAttach++
		req.Attachments[i].ID = f.nextAttach
		req.Attachments[i].RequestID = req.ID
	}
	f.items[req.ID] = cloneRequest(req)
	f.outbox.add(req.ID, outbox)
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id int64) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (f *fakeRequestRepo) List(_ context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Request
	for _, r := range f.items {
		if filter.CreatorID != nil && r.UserID != *filter.CreatorID {
			continue
		}
		if filter.PerformerID != nil && (r.PerformerID == nil || *r.PerformerID != *filter.PerformerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, r.Status) {
			continue
		}
		if filter.OfficeID != nil && (r.OfficeID == nil || *r.OfficeID != *filter.OfficeID) {
			continue
		}
		if filter.Region != nil && (r.Office == nil || r.Office.Region != *filter.Region) {
			continue
		}
		if filter.City != nil && (r.Office == nil || r.Office.City != *filter.City) {
			continue
		}
		if filter.CreatedFrom != nil && r.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && r.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		out = append(out, *cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeRequestRepo) Update(_ context.Context, req *domain.Request, change repository.RequestChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		stored.Version++
		return repository.ErrVersionConflict
	}
	if stored.Version != req.Version {
		return repository.ErrVersionConflict
	}
	f.updates++
	req.Version++
	req.UpdatedAt = f.clock()
	for i := range change.Comments {
		f.nextComment++
		change.Comments[i].ID = f.nextComment
		change.Comments[i].RequestID = req.ID
		change.Comments[i].CreatedAt = f.clock()
		req.Comments = append(req.Comments, change.Comments[i])
	}
	for i := range change.History {
		change.History[i].ID = int64(len(f.history) + 1)
		change.History[i].RequestID = req.ID
		change.History[i].CreatedAt = f.clock()
		f.history = append(f.history, change.History[i])
	}
	office := stored.Office
	f.items[req.ID] = cloneRequest(req)
	f.items[req.ID].Office = office
	f.outbox.add(req.ID, change.Outbox)
	return nil
}

func (f *fakeRequestRepo) CountOpenByPerformer(_ context.Context, ids []int64) (map[int64]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[int64]int{}
	for _, r := range f.items {
		if r.PerformerID == nil || r.Status.IsTerminal() {
			continue
		}
		for _, id := range ids {
			if id == *r.PerformerID {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (f *fakeRequestRepo) ArchiveCompletedBefore(_ context.Context, cutoff time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, r := range f.items {
		if r.Status == domain.StatusCompleted && r.CompletedAt != nil && r.CompletedAt.Before(cutoff) {
			r.Status = domain.StatusArchived
			r.Version++
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// set stores a request as-is, bypassing Create.
func (f *fakeRequestRepo) set(r *domain.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	if r.ID > f.nextID {
		f.nextID = r.ID
	}
	f.items[r.ID] = cloneRequest(r)
}

func (f *fakeRequestRepo) ListByRequest(_ context.Context, requestID int64) ([]domain.RequestHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RequestHistory
	for _, h := range f.history {
		if h.RequestID == requestID {
			out = append(out, h)
		}
	}
	return out, nil
}

type outboxRow struct {
	msg          repository.OutboxMessage
	claimedUntil time.Time
}

// fakeOutbox mirrors the lease semantics of the notification_outbox table.
type fakeOutbox struct {
	mu     sync.Mutex
	clock  func() time.Time
	nextID int64
	rows   []*outboxRow
}

func (f *fakeOutbox) add(requestID int64, messages []repository.OutboxMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range messages {
		f.nextID++
		msg.ID = f.nextID
		msg.RequestID = requestID
		msg.CreatedAt = f.clock()
		f.rows = append(f.rows, &outboxRow{msg: msg})
	}
}

func (f *fakeOutbox) Claim(_ context.Context, limit int, lease time.Duration) ([]repository.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock()
	var out []repository.OutboxMessage
	for _, row := range f.rows {
		if len(out) == limit {
			break
		}
		if !row.claimedUntil.IsZero() && !row.claimedUntil.Before(now) {
			continue
		}
		row.msg.Attempts++
		row.claimedUntil = now.Add(lease)
		out = append(out, row.msg)
	}
	return out, nil
}

func (f *fakeOutbox) Delete(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.rows[:0]
	for _, row := range f.rows {
		if !drop[row.msg.ID] {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeOutbox) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func containsStatus(list []domain.RequestStatus, s domain.RequestStatus) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*domain.User
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[int64]*domain.User{}}
	for i := range users {
		u := users[i]
		repo.users[u.ID] = &u
	}
	return repo
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) ListByRole(_ context.Context, role *domain.Role) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.User
	for _, u := range f.users {
		if role == nil || u.Role == *role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUserRepo) UpdateAvatar(_ context.Context, id int64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.AvatarKey = key
	return nil
}

type fakeOfficeRepo struct {
	offices []domain.Office
}

func (f *fakeOfficeRepo) GetByID(_ context.Context, id int64) (*domain.Office, error) {
	for _, o := range f.offices {
		if o.ID == id {
			c := o
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOfficeRepo) List(_ context.Context) ([]domain.Office, error) {
	return append([]domain.Office(nil), f.offices...), nil
}

type fakeNotificationRepo struct {
	mu    sync.Mutex
	items []domain.Notification
	clock func() time.Time
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.items) + 1)
	n.IsRead = false
	n.CreatedAt = f.clock().Add(time.Duration(n.ID) * time.Millisecond)
	f.items = append(f.items, *n)
	return nil
}

func (f *fakeNotificationRepo) GetByID(_ context.Context, id int64) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.items {
		if n.ID == id {
			c := n
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeNotificationRepo) ListByUser(_ context.Context, userID int64) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeNotificationRepo) CountUnread(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) forUser(userID int64) []domain.Notification {
	items, _ := f.ListByUser(context.Background(), userID)
	return items
}

type fakeAttachmentRepo struct {
	mu    sync.Mutex
	items []domain.Attachment
	keys  map[string]bool
	err   error
}

func (f *fakeAttachmentRepo) AddToRequest(_ context.Context, requestID int64, attachments []domain.Attachment) ([]domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	saved := make([]domain.Attachment, 0, len(attachments))
	for _, a := range attachments {
		a.ID = int64(len(f.items) + 1)
		a.RequestID = requestID
		f.items = append(f.items, a)
		saved = append(saved, a)
	}
	return saved, nil
}

func (f *fakeAttachmentRepo) ListByRequest(_ context.Context, requestID int64) ([]domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Attachment
	for _, a := range f.items {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttachmentRepo) ExistsByKey(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return true, nil
	}
	for _, a := range f.items {
		if a.StorageKey == key {
			return true, nil
		}
	}
	return false, nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut int
	puts    int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failPut > 0 && f.puts >= f.failPut {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, persistence.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, persistence.ObjectInfo{}, persistence.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), persistence.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: f.types[key]}, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// flakyQueue rejects the first failures enqueues, as a Redis outage would.
type flakyQueue struct {
	*queue.MemoryQueue
	mu       sync.Mutex
	failures int
}

func (q *flakyQueue) Enqueue(ctx context.Context, job queue.NotificationJob) error {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return errors.New("redis unavailable")
	}
	q.mu.Unlock()
	return q.MemoryQueue.Enqueue(ctx, job)
}

const (
	employeeID   int64 = 1
	ahoID        int64 = 2
	secondAhoID  int64 = 3
	supervisorID int64 = 4
	otherEmpID   int64 = 5
	officeA      int64 = 10
	officeB      int64 = 11
)

var (
	employee   = domain.Caller{UserID: employeeID, Role: domain.RoleEmployee}
	aho        = domain.Caller{UserID: ahoID, Role: domain.RoleAHO}
	supervisor = domain.Caller{UserID: supervisorID, Role: domain.RoleSupervisor}
	otherEmp   = domain.Caller{UserID: otherEmpID, Role: domain.RoleEmployee}
)

type testEnv struct {
	now           time.Time
	requestsRepo  *fakeRequestRepo
	users         *fakeUserRepo
	offices       *fakeOfficeRepo
	notifications *fakeNotificationRepo
	attachRepo    *fakeAttachmentRepo
	objects       *fakeObjectStore
	outbox        *fakeOutbox
	queue         *queue.MemoryQueue

	requests      *RequestService
	notifier      *NotificationService
	attachmentSvc *AttachmentService
	assignment    *AssignmentService
	relay         *worker.OutboxRelay
	worker        *worker.NotificationWorker
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithQueue(t, nil)
}

func newTestEnvWithQueue(t *testing.T, q queue.NotificationQueue) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, time.May, 14, 10, 30, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.requestsRepo = newFakeRequestRepo(clock)
	env.outbox = env.requestsRepo.outbox
	env.users = newFakeUserRepo(
		domain.User{ID: employeeID, Email: "emp@example.com", Role: domain.RoleEmployee, FirstName: "Anna", OfficeID: int64Ptr(officeA)},
		domain.User{ID: ahoID, Email: "aho@example.com", Role: domain.RoleAHO, FirstName: "Boris", OfficeID: int64Ptr(officeB)},
		domain.User{ID: secondAhoID, Email: "aho2@example.com", Role: domain.RoleAHO, FirstName: "Vera", OfficeID: int64Ptr(officeA)},
		domain.User{ID: supervisorID, Email: "sup@example.com", Role: domain.RoleSupervisor},
		domain.User{ID: otherEmpID, Email: "other@example.com", Role: domain.RoleEmployee},
	)
	env.offices = &fakeOfficeRepo{offices: []domain.Office{
		{ID: officeA, Name: "Office A", Address: "1 Main St", City: "Kazan", Region: "Tatarstan"},
		{ID: officeB, Name: "Office B", Address: "2 River Rd", City: "Moscow", Region: "Moscow"},
	}}
	env.notifications = &fakeNotificationRepo{clock: clock}
	env.attachRepo = &fakeAttachmentRepo{keys: map[string]bool{}}
	env.objects = newFakeObjectStore()
	env.queue = queue.NewMemoryQueue()
	if q == nil {
		q = env.queue
	}

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	env.notifier = NewNotificationService(NotificationDependencies{
		NotificationRepo: env.notifications,
		Queue:            q,
		Dispatcher:       dispatcher,
		Logger:           zap.NewNop(),
	})
	env.notifier.RegisterHandlers()

	env.attachmentSvc = NewAttachmentService(AttachmentDependencies{
		Objects:        env.objects,
		AttachmentRepo: env.attachRepo,
		RequestRepo:    env.requestsRepo,
		MaxUploadBytes: 5 << 20,
		PublicBaseURL:  "http://files.test/",
		Logger:         zap.NewNop(),
	})
	env.assignment = NewAssignmentService(AssignmentDependencies{UserRepo: env.users, RequestRepo: env.requestsRepo})
	env.requests = NewRequestService(RequestDependencies{
		RequestRepo: env.requestsRepo,
		HistoryRepo: env.requestsRepo,
		OfficeRepo:  env.offices,
		Attachments: env.attachmentSvc,
		Assignment:  env.assignment,
		Logger:      zap.NewNop(),
		Clock:       clock,
	})
	env.relay = worker.NewOutboxRelay(env.outbox, dispatcher, 10, time.Millisecond, 30*time.Second, zap.NewNop())
	env.worker = worker.NewNotificationWorker(q, env.notifier, 3, time.Millisecond, zap.NewNop())
	return env
}

// deliver relays committed events once and runs the worker until the queue
// is empty.
func (e *testEnv) deliver(t *testing.T) {
	t.Helper()
	if _, err := e.relay.RelayOnce(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	for i := 0; i < 100; i++ {
		took, err := e.worker.ProcessOne(context.Background())
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
		if !took {
			return
		}
	}
	t.Fatal("notification queue did not drain")
}

func validCreateInput() CreateRequestInput {
	return CreateRequestInput{
		IssueType:           domain.IssueHardware,
		Priority:            domain.PriorityHigh,
		Address:             "Office A",
		LocationDescription: "Desk 5",
		ProblemDescription:  "Monitor broken",
	}
}
