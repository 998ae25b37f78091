package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
)

type constHandler struct{ field string }

func (h constHandler) Field() string          { return h.field }
func (h constHandler) Dependencies() []string { return nil }
func (h constHandler) Execute(context.Context, discovery.Provider, common.Address) (discovery.Result, error) {
	return discovery.Result{Value: "1"}, nil
}

type fakeDiscoverer struct {
	mu    sync.Mutex
	calls []uint64
	err   error
}

func (f *fakeDiscoverer) Discover(_ context.Context, address common.Address, block uint64, plan *discovery.Plan) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Snapshot{}, f.err
	}
	f.calls = append(f.calls, block)
	fields := make(map[string]model.FieldResult)
	for _, field := range plan.Fields() {
		fields[field] = model.FieldResult{Field: field, Value: "1"}
	}
	fields["broken"] = model.FieldResult{Field: "broken", Error: &model.FieldError{Kind: model.ErrorKindReverted, Message: "reverted"}}
	return model.Snapshot{ChainID: 1, Address: address.Hex(), BlockNumber: block, Fields: fields}, nil
}

type memoryRepository struct {
	snapshots map[string]model.Snapshot
}

func snapshotKey(address string, block uint64) string {
	return fmt.Sprintf("%s@%d", address, block)
}

func (m *memoryRepository) PutSnapshot(_ context.Context, s model.Snapshot) error {
	if m.snapshots == nil {
		m.snapshots = make(map[string]model.Snapshot)
	}
	m.snapshots[snapshotKey(s.Address, s.BlockNumber)] = s
	return nil
}

func (m *memoryRepository) GetSnapshot(_ context.Context, _ uint64, address string, block uint64) (model.Snapshot, bool, error) {
	s, ok := m.snapshots[snapshotKey(address, block)]
	return s, ok, nil
}

func testTargets(t *testing.T) []Target {
	t.Helper()
	plan, err := discovery.NewPlan([]discovery.Handler{constHandler{field: "owner"}})
	require.NoError(t, err)
	return []Target{
		{Name: "A", Address: common.HexToAddress("0xaa"), Plan: plan},
		{Name: "B", Address: common.HexToAddress("0xbb"), Plan: plan},
	}
}

func entries() []model.BlockNumberRecord {
	return []model.BlockNumberRecord{
		{Timestamp: 7200, BlockNumber: 20},
		{Timestamp: 3600, BlockNumber: 10},
	}
}

func TestRunWritesEverySnapshot(t *testing.T) {
	discoverer := &fakeDiscoverer{}
	repo := &memoryRepository{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	r, err := NewRunner(1, testTargets(t), discoverer, repo, Options{Repository: repo, State: state})
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), entries())
	require.NoError(t, err)
	assert.Equal(t, Summary{Snapshots: 4, FailedFields: 4}, summary)
	assert.Equal(t, []uint64{10, 10, 20, 20}, discoverer.calls)

	got, ok, err := repo.GetSnapshot(context.Background(), 1, common.HexToAddress("0xbb").Hex(), 20)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", got.Name)

	ts, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7200), ts)
}

func TestRunSkipsExistingSnapshots(t *testing.T) {
	discoverer := &fakeDiscoverer{}
	repo := &memoryRepository{}
	r, err := NewRunner(1, testTargets(t), discoverer, repo, Options{Repository: repo})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), entries())
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), entries())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 4}, summary)
	assert.Len(t, discoverer.calls, 4)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	discoverer := &fakeDiscoverer{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	require.NoError(t, state.Save(context.Background(), 3600))

	r, err := NewRunner(1, testTargets(t), discoverer, &memoryRepository{}, Options{State: state})
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), entries())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Snapshots)
	assert.Equal(t, []uint64{20, 20}, discoverer.calls)
}

func TestRunStopsOnDiscoveryError(t *testing.T) {
	boom := errors.New("transport down")
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	r, err := NewRunner(1, testTargets(t), &fakeDiscoverer{err: boom}, &memoryRepository{}, Options{State: state})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), entries())
	require.ErrorIs(t, err, boom)

	_, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint must not advance past a failed entry")
}

func TestNewRunnerValidates(t *testing.T) {
	targets := testTargets(t)
	_, err := NewRunner(1, targets, nil, &memoryRepository{}, Options{})
	require.Error(t, err)
	_, err = NewRunner(1, targets, &fakeDiscoverer{}, nil, Options{})
	require.Error(t, err)
	_, err = NewRunner(1, nil, &fakeDiscoverer{}, &memoryRepository{}, Options{})
	require.Error(t, err)
	_, err = NewRunner(1, []Target{{Name: "x"}}, &fakeDiscoverer{}, &memoryRepository{}, Options{})
	require.Error(t, err)
}

type memoryBackend struct {
	values map[string]uint64
}

func (m *memoryBackend) LoadState(_ context.Context, name string) (uint64, bool, error) {
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memoryBackend) SaveState(_ context.Context, name string, ts uint64) error {
	if m.values == nil {
		m.values = make(map[string]uint64)
	}
	m.values[name] = ts
	return nil
}

func TestDBStateStore(t *testing.T) {
	backend := &memoryBackend{}
	store := &DBStateStore{Store: backend, Name: "discovery:1"}
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, 99))
	ts, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(99), ts)
	assert.Equal(t, uint64(99), backend.values["discovery:1"])

	var empty *DBStateStore
	_, ok, err = empty.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
