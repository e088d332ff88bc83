package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"imageflow/pkg/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a fully in-memory implementation of Store. Safe for
// concurrent access. Intended for unit testing and local development.
type MemoryStore struct {
	mu sync.RWMutex

	runs        map[string]*models.Run
	images      map[string]*models.RunImage
	approvals   map[string]*models.RunImageApproval
	submissions map[string]*models.LinkSubmission
}

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]*models.Run),
		images:      make(map[string]*models.RunImage),
		approvals:   make(map[string]*models.RunImageApproval),
		submissions: make(map[string]*models.LinkSubmission),
	}
}

func cloneRun(run *models.Run) *models.Run {
	cp := *run
	cp.Images = nil
	return &cp
}

func cloneImage(img *models.RunImage) *models.RunImage {
	cp := *img
	return &cp
}

func (m *MemoryStore) imagesForRun(runID string) []*models.RunImage {
	images := []*models.RunImage{}
	for _, img := range m.images {
		if img.RunID == runID {
			images = append(images, cloneImage(img))
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Ordinal < images[j].Ordinal })
	return images
}

// CreateRun inserts a run together with any caller-supplied images.
func (m *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = cloneRun(run)
	for _, img := range run.Images {
		m.images[img.ID] = cloneImage(img)
	}
	return nil
}

// GetRun retrieves a run with its images ordered by ordinal.
func (m *MemoryStore) GetRun(_ context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneRun(run)
	cp.Images = m.imagesForRun(id)
	return cp, nil
}

// ListRuns returns runs matching any of the given statuses, newest first.
func (m *MemoryStore) ListRuns(_ context.Context, statuses []models.RunStatus) ([]*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[models.RunStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}

	runs := []*models.Run{}
	for _, run := range m.runs {
		if run.Status == models.RunStatusPosted {
			continue
		}
		if _, ok := wanted[run.Status]; !ok {
			continue
		}
		cp := cloneRun(run)
		cp.Images = m.imagesForRun(run.ID)
		runs = append(runs, cp)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

// CountRunsByStatus counts runs currently in the given status.
func (m *MemoryStore) CountRunsByStatus(_ context.Context, status models.RunStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, run := range m.runs {
		if run.Status == status {
			count++
		}
	}
	return count, nil
}

// UpdateRunStatus sets a run's status and bumps updated_at.
func (m *MemoryStore) UpdateRunStatus(_ context.Context, id string, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchRun bumps a run's updated_at without changing its status.
func (m *MemoryStore) TouchRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// AddRunImages appends images to a run preserving their ordinals. Ordinals
// must be unique within the run, matching the database constraint.
func (m *MemoryStore) AddRunImages(_ context.Context, runID string, images []*models.RunImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	taken := make(map[int]struct{})
	for _, img := range m.images {
		if img.RunID == runID {
			taken[img.Ordinal] = struct{}{}
		}
	}
	for _, img := range images {
		if _, dup := taken[img.Ordinal]; dup {
			return fmt.Errorf("run %s already has an image with ordinal %d", runID, img.Ordinal)
		}
		taken[img.Ordinal] = struct{}{}
	}
	for _, img := range images {
		m.images[img.ID] = cloneImage(img)
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// GetRunImage retrieves an image scoped to its run.
func (m *MemoryStore) GetRunImage(_ context.Context, runID, imageID string) (*models.RunImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[imageID]
	if !ok || img.RunID != runID {
		return nil, ErrNotFound
	}
	return cloneImage(img), nil
}

// GetRunImageByID retrieves an image by id alone.
func (m *MemoryStore) GetRunImageByID(_ context.Context, imageID string) (*models.RunImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[imageID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneImage(img), nil
}

// SetRunImageStatus updates an image's status and optionally its notes.
func (m *MemoryStore) SetRunImageStatus(_ context.Context, imageID string, status models.RunImageStatus, notes *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[imageID]
	if !ok {
		return ErrNotFound
	}
	img.Status = status
	if notes != nil {
		img.Notes = notes
	}
	return nil
}

// ClaimNextQueuedRun claims the oldest queued run under the store lock.
func (m *MemoryStore) ClaimNextQueuedRun(_ context.Context) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *models.Run
	for _, run := range m.runs {
		if run.Status != models.RunStatusQueued {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			oldest = run
		}
	}
	if oldest == nil {
		return nil, ErrNotFound
	}
	oldest.Status = models.RunStatusGenerating
	oldest.UpdatedAt = time.Now().UTC()
	return cloneRun(oldest), nil
}

// ListStuckRuns returns generating runs untouched for at least olderThan.
func (m *MemoryStore) ListStuckRuns(_ context.Context, olderThan time.Duration) ([]*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	runs := []*models.Run{}
	for _, run := range m.runs {
		if run.Status == models.RunStatusGenerating && run.UpdatedAt.Before(cutoff) {
			runs = append(runs, cloneRun(run))
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].UpdatedAt.Before(runs[j].UpdatedAt) })
	return runs, nil
}

// CreateApproval inserts an approval audit record.
func (m *MemoryStore) CreateApproval(_ context.Context, approval *models.RunImageApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *approval
	m.approvals[approval.ID] = &cp
	return nil
}

// GetApproval retrieves an approval by id.
func (m *MemoryStore) GetApproval(_ context.Context, id string) (*models.RunImageApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	approval, ok := m.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *approval
	return &cp, nil
}

// IncrementApprovalWebhookAttempts adds one delivery attempt.
func (m *MemoryStore) IncrementApprovalWebhookAttempts(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	approval, ok := m.approvals[id]
	if !ok {
		return ErrNotFound
	}
	approval.WebhookAttempts++
	return nil
}

// SetApprovalWebhookResult records the outcome of the last attempt.
func (m *MemoryStore) SetApprovalWebhookResult(_ context.Context, id string, status models.WebhookStatus, lastError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	approval, ok := m.approvals[id]
	if !ok {
		return ErrNotFound
	}
	approval.WebhookStatus = status
	approval.WebhookLastError = lastError
	return nil
}

// CreateLinkSubmission inserts a link submission.
func (m *MemoryStore) CreateLinkSubmission(_ context.Context, submission *models.LinkSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *submission
	m.submissions[submission.ID] = &cp
	return nil
}

// GetLinkSubmission retrieves a link submission by id.
func (m *MemoryStore) GetLinkSubmission(_ context.Context, id string) (*models.LinkSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListLinkSubmissions returns submissions newest first, up to limit.
func (m *MemoryStore) ListLinkSubmissions(_ context.Context, limit int) ([]*models.LinkSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := []*models.LinkSubmission{}
	for _, sub := range m.submissions {
		cp := *sub
		subs = append(subs, &cp)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	if len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

// IncrementLinkWebhookAttempts adds one delivery attempt.
func (m *MemoryStore) IncrementLinkWebhookAttempts(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return ErrNotFound
	}
	sub.WebhookAttempts++
	return nil
}

// SetLinkWebhookResult records the outcome of the last attempt.
func (m *MemoryStore) SetLinkWebhookResult(_ context.Context, id string, status models.WebhookStatus, lastError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return ErrNotFound
	}
	sub.WebhookStatus = status
	sub.WebhookLastError = lastError
	return nil
}
