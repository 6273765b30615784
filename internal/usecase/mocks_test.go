//go:build !integration

package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/adapter"
	"ocr-batch-sync/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memStatusCache is an in-memory StatusCache tracking call counts.
type memStatusCache struct {
	mu            sync.Mutex
	store         map[string]model.JobStatus
	hits          int
	sets          int
	invalidations int
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{store: make(map[string]model.JobStatus)}
}

func (m *memStatusCache) Get(ctx context.Context, jobID string) (model.JobStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[jobID]
	if ok {
		m.hits++
	}
	return s, ok
}

func (m *memStatusCache) Set(ctx context.Context, jobID string, status model.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.store[jobID] = status
}

func (m *memStatusCache) Invalidate(ctx context.Context, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
	delete(m.store, jobID)
}

// memTxManager runs the function without a real transaction; the in-memory
// repos accept a nil tx handle.
type memTxManager struct {
	beginErr error
}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	return fn(ctx, nil)
}

// memJobRepo is a small in-memory implementation used by unit tests.
type memJobRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.Job
	upsertErr error // used by tests to simulate persistence failures
	listErr   error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) Upsert(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Job, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Job, 0, len(m.store))
	for _, j := range m.store {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *memJobRepo) ListByDocument(ctx context.Context, tx repository.Tx, documentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, j := range m.store {
		if j.DocumentID == documentID {
			ids = append(ids, j.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// memDocumentRepo mirrors memJobRepo for documents.
type memDocumentRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.Document
	createErr error
}

func newMemDocumentRepo() *memDocumentRepo {
	return &memDocumentRepo{store: make(map[string]*model.Document)}
}

func (m *memDocumentRepo) Create(ctx context.Context, tx repository.Tx, doc *model.Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[doc.ID]; ok {
		return nil
	}
	cp := *doc
	m.store[doc.ID] = &cp
	return nil
}

func (m *memDocumentRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocumentRepo) FindRecentByName(ctx context.Context, tx repository.Tx, name string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.Document
	for _, d := range m.store {
		if d.Name != name {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *best
	return &cp, nil
}

// fakeBatchAPI lets each test script the remote service per call and
// counts invocations.
type fakeBatchAPI struct {
	mu sync.Mutex

	CreateJobFunc func(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error)
	GetJobFunc    func(ctx context.Context, jobID string) (adapter.RemoteJob, error)
	ListJobsFunc  func(ctx context.Context) ([]adapter.RemoteJob, error)
	CancelJobFunc func(ctx context.Context, jobID string) (adapter.RemoteJob, error)

	createCalls int
	getCalls    int
	listCalls   int
	cancelCalls int
}

func (f *fakeBatchAPI) CreateJob(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.CreateJobFunc == nil {
		return adapter.RemoteJob{}, domain.ErrInvalidArgument
	}
	return f.CreateJobFunc(ctx, files, ocrModel, metadata)
}

func (f *fakeBatchAPI) GetJob(ctx context.Context, jobID string) (adapter.RemoteJob, error) {
	f.mu.Lock()
	f.getCalls++
	f.mu.Unlock()
	if f.GetJobFunc == nil {
		return adapter.RemoteJob{}, domain.ErrJobNotFound
	}
	return f.GetJobFunc(ctx, jobID)
}

func (f *fakeBatchAPI) ListJobs(ctx context.Context) ([]adapter.RemoteJob, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.ListJobsFunc == nil {
		return nil, nil
	}
	return f.ListJobsFunc(ctx)
}

func (f *fakeBatchAPI) CancelJob(ctx context.Context, jobID string) (adapter.RemoteJob, error) {
	f.mu.Lock()
	f.cancelCalls++
	f.mu.Unlock()
	if f.CancelJobFunc == nil {
		return adapter.RemoteJob{}, domain.ErrJobNotFound
	}
	return f.CancelJobFunc(ctx, jobID)
}

func (f *fakeBatchAPI) calls() (create, get, list, cancel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.getCalls, f.listCalls, f.cancelCalls
}
