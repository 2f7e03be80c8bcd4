package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/metrics"
)

// In-memory Store implementation.
//
// Locking: the index lock only guards the id maps. Each record has its own
// mutex, so writes to different records never contend. Commit acquires the
// record locks it needs in ascending (kind, id) order, judges before projects,
// and holds them while mutations run.

type projectSlot struct {
	mu  sync.Mutex
	rec model.Project
}

type judgeSlot struct {
	mu  sync.Mutex
	rec model.Judge
}

// MemStore is a concurrency-safe in-memory Store.
type MemStore struct {
	idx      sync.RWMutex
	projects map[string]*projectSlot
	judges   map[string]*judgeSlot

	flagsMu sync.RWMutex
	flags   []model.Flag

	latency time.Duration
	newID   func() string
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an empty store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		projects: make(map[string]*projectSlot),
		judges:   make(map[string]*judgeSlot),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wait simulates I/O latency and honours cancellation.
func (s *MemStore) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func observeRead(start time.Time) {
	metrics.RecordStoreReadLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeWrite(start time.Time) {
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func invalid(kind, id string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrInvalidRecord, kind, id, err)
}

// CreateProject implements Store.
func (s *MemStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	defer observeWrite(time.Now())
	if err := s.wait(ctx); err != nil {
		return model.Project{}, err
	}
	if p.ID == "" {
		p.ID = s.newID()
	}
	p.Version = 1
	if err := p.Validate(); err != nil {
		return model.Project{}, invalid("project", p.ID, err)
	}

	s.idx.Lock()
	if _, ok := s.projects[p.ID]; ok {
		s.idx.Unlock()
		return model.Project{}, fmt.Errorf("%w: project %q exists", ErrConflict, p.ID)
	}
	s.projects[p.ID] = &projectSlot{rec: p}
	n := len(s.projects)
	s.idx.Unlock()

	metrics.UpdateStoreRecords("project", n)
	return p, nil
}

// CreateJudge implements Store.
func (s *MemStore) CreateJudge(ctx context.Context, j model.Judge) (model.Judge, error) {
	defer observeWrite(time.Now())
	if err := s.wait(ctx); err != nil {
		return model.Judge{}, err
	}
	if j.ID == "" {
		j.ID = s.newID()
	}
	if j.State == "" {
		j.State = model.StateIdle
	}
	j = j.Clone()
	j.Version = 1
	if err := j.Validate(); err != nil {
		return model.Judge{}, invalid("judge", j.ID, err)
	}

	s.idx.Lock()
	if _, ok := s.judges[j.ID]; ok {
		s.idx.Unlock()
		return model.Judge{}, fmt.Errorf("%w: judge %q exists", ErrConflict, j.ID)
	}
	s.judges[j.ID] = &judgeSlot{rec: j}
	n := len(s.judges)
	s.idx.Unlock()

	metrics.UpdateStoreRecords("judge", n)
	return j.Clone(), nil
}

func (s *MemStore) projectSlot(id string) (*projectSlot, error) {
	s.idx.RLock()
	slot, ok := s.projects[id]
	s.idx.RUnlock()
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, fmt.Errorf("%w: project %q", ErrNotFound, id)
	}
	return slot, nil
}

func (s *MemStore) judgeSlot(id string) (*judgeSlot, error) {
	s.idx.RLock()
	slot, ok := s.judges[id]
	s.idx.RUnlock()
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, fmt.Errorf("%w: judge %q", ErrNotFound, id)
	}
	return slot, nil
}

// GetProject implements Store.
func (s *MemStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	defer observeRead(time.Now())
	if err := s.wait(ctx); err != nil {
		return model.Project{}, err
	}
	slot, err := s.projectSlot(id)
	if err != nil {
		return model.Project{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.rec, nil
}

// GetJudge implements Store.
func (s *MemStore) GetJudge(ctx context.Context, id string) (model.Judge, error) {
	defer observeRead(time.Now())
	if err := s.wait(ctx); err != nil {
		return model.Judge{}, err
	}
	slot, err := s.judgeSlot(id)
	if err != nil {
		return model.Judge{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.rec.Clone(), nil
}

// UpdateProject implements Store.
func (s *MemStore) UpdateProject(ctx context.Context, id string, fn func(*model.Project) error) (model.Project, error) {
	defer observeWrite(time.Now())
	if err := s.wait(ctx); err != nil {
		return model.Project{}, err
	}
	slot, err := s.projectSlot(id)
	if err != nil {
		return model.Project{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	cp := slot.rec
	if err := fn(&cp); err != nil {
		return model.Project{}, err
	}
	cp.ID = id
	if err := cp.Validate(); err != nil {
		return model.Project{}, invalid("project", id, err)
	}
	cp.Version = slot.rec.Version + 1
	slot.rec = cp
	return cp, nil
}

// UpdateJudge implements Store.
func (s *MemStore) UpdateJudge(ctx context.Context, id string, fn func(*model.Judge) error) (model.Judge, error) {
	defer observeWrite(time.Now())
	if err := s.wait(ctx); err != nil {
		return model.Judge{}, err
	}
	slot, err := s.judgeSlot(id)
	if err != nil {
		return model.Judge{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	cp := slot.rec.Clone()
	if err := fn(&cp); err != nil {
		return model.Judge{}, err
	}
	cp.ID = id
	if err := cp.Validate(); err != nil {
		return model.Judge{}, invalid("judge", id, err)
	}
	cp.Version = slot.rec.Version + 1
	slot.rec = cp
	return cp.Clone(), nil
}

// lockRef is one record lock taken by Commit.
type lockRef struct {
	key string
	mu  *sync.Mutex
}

// Commit implements Store.
func (s *MemStore) Commit(ctx context.Context, b Batch) error {
	defer observeWrite(time.Now())
	if err := s.wait(ctx); err != nil {
		return err
	}

	for i := range b.Projects {
		if err := b.Projects[i].Validate(); err != nil {
			return invalid("project", b.Projects[i].ID, err)
		}
	}

	judgeSlots := make([]*judgeSlot, len(b.Judges))
	projectSlots := make([]*projectSlot, len(b.Projects))
	mutSlots := make([][]*projectSlot, len(b.Mutations))
	refs := make([]lockRef, 0, len(b.Judges)+len(b.Projects)+len(b.Mutations))
	for i, j := range b.Judges {
		slot, err := s.judgeSlot(j.ID)
		if err != nil {
			return err
		}
		judgeSlots[i] = slot
		refs = append(refs, lockRef{key: "judge/" + j.ID, mu: &slot.mu})
	}
	for i, p := range b.Projects {
		slot, err := s.projectSlot(p.ID)
		if err != nil {
			return err
		}
		projectSlots[i] = slot
		refs = append(refs, lockRef{key: "project/" + p.ID, mu: &slot.mu})
	}
	for i, m := range b.Mutations {
		if m.Apply == nil {
			return fmt.Errorf("%w: mutation without Apply", ErrInvalidRecord)
		}
		for _, id := range m.Projects {
			slot, err := s.projectSlot(id)
			if err != nil {
				return err
			}
			mutSlots[i] = append(mutSlots[i], slot)
			refs = append(refs, lockRef{key: "project/" + id, mu: &slot.mu})
		}
	}

	slices.SortFunc(refs, func(a, b lockRef) int { return cmp.Compare(a.key, b.key) })
	for i := 1; i < len(refs); i++ {
		if refs[i].key == refs[i-1].key {
			return fmt.Errorf("%w: %s appears twice in batch", ErrInvalidRecord, refs[i].key)
		}
	}
	for _, r := range refs {
		r.mu.Lock()
	}
	defer func() {
		for i := len(refs) - 1; i >= 0; i-- {
			refs[i].mu.Unlock()
		}
	}()

	for i, j := range b.Judges {
		if judgeSlots[i].rec.Version != j.Version {
			return fmt.Errorf("%w: judge %q", ErrConflict, j.ID)
		}
	}
	for i, p := range b.Projects {
		if projectSlots[i].rec.Version != p.Version {
			return fmt.Errorf("%w: project %q", ErrConflict, p.ID)
		}
	}

	judges := make([]*model.Judge, len(b.Judges))
	for i := range b.Judges {
		j := b.Judges[i].Clone()
		judges[i] = &j
	}
	mutated := make([][]*model.Project, len(b.Mutations))
	for i, m := range b.Mutations {
		for _, slot := range mutSlots[i] {
			p := slot.rec
			mutated[i] = append(mutated[i], &p)
		}
		if err := m.Apply(judges, mutated[i]); err != nil {
			return err
		}
		for k, p := range mutated[i] {
			p.ID = m.Projects[k]
			if err := p.Validate(); err != nil {
				return invalid("project", p.ID, err)
			}
		}
	}
	for i, j := range judges {
		j.ID = b.Judges[i].ID
		if err := j.Validate(); err != nil {
			return invalid("judge", j.ID, err)
		}
	}

	for i, j := range judges {
		j.Version = judgeSlots[i].rec.Version + 1
		judgeSlots[i].rec = *j
	}
	for i, p := range b.Projects {
		p.Version++
		projectSlots[i].rec = p
	}
	for i := range b.Mutations {
		for k, p := range mutated[i] {
			p.Version = mutSlots[i][k].rec.Version + 1
			mutSlots[i][k].rec = *p
		}
	}
	return nil
}

func (s *MemStore) snapshotProjects() []*projectSlot {
	s.idx.RLock()
	defer s.idx.RUnlock()
	out := make([]*projectSlot, 0, len(s.projects))
	for _, slot := range s.projects {
		out = append(out, slot)
	}
	return out
}

func (s *MemStore) listProjects(ctx context.Context, keep func(*model.Project) bool) ([]model.Project, error) {
	defer observeRead(time.Now())
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	slots := s.snapshotProjects()
	out := make([]model.Project, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		p := slot.rec
		slot.mu.Unlock()
		if keep(&p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Project) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListActive implements Store.
func (s *MemStore) ListActive(ctx context.Context, group *model.Group) ([]model.Project, error) {
	return s.listProjects(ctx, func(p *model.Project) bool {
		return p.Active && (group == nil || p.InGroup(*group))
	})
}

// ListProjects implements Store.
func (s *MemStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	return s.listProjects(ctx, func(*model.Project) bool { return true })
}

// ListJudges implements Store.
func (s *MemStore) ListJudges(ctx context.Context) ([]model.Judge, error) {
	defer observeRead(time.Now())
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.idx.RLock()
	slots := make([]*judgeSlot, 0, len(s.judges))
	for _, slot := range s.judges {
		slots = append(slots, slot)
	}
	s.idx.RUnlock()

	out := make([]model.Judge, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		out = append(out, slot.rec.Clone())
		slot.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b model.Judge) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// AppendFlag implements Store.
func (s *MemStore) AppendFlag(ctx context.Context, f model.Flag) error {
	defer observeWrite(time.Now())
	if err := s.wait(ctx); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	if f.ProjectID == "" || f.JudgeID == "" {
		return invalid("flag", f.ID, model.ErrMissingID)
	}
	// Display fields are a read projection and are never stored.
	f.ProjectName, f.JudgeName, f.ProjectLocation = "", "", 0

	s.flagsMu.Lock()
	s.flags = append(s.flags, f)
	n := len(s.flags)
	s.flagsMu.Unlock()

	metrics.UpdateStoreRecords("flag", n)
	return nil
}

// ListFlags implements Store.
func (s *MemStore) ListFlags(ctx context.Context) ([]model.Flag, error) {
	defer observeRead(time.Now())
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.flagsMu.RLock()
	defer s.flagsMu.RUnlock()
	return slices.Clone(s.flags), nil
}
