package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/basel-ax/orthoview/internal/domain"
	"github.com/basel-ax/orthoview/internal/metrics"
	"github.com/basel-ax/orthoview/internal/service"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), []byte("\x00\x00\x00\rIHDR test image")...)

type mockGenerator struct {
	calls   atomic.Int32
	fail    map[domain.ViewKind]bool
	release chan struct{}
}

func (m *mockGenerator) GenerateView(ctx context.Context, payload domain.EncodedPayload, kind domain.ViewKind) (string, error) {
	m.calls.Add(1)
	if m.release != nil {
		<-m.release
	}
	if m.fail[kind] {
		return "", domain.NewGenerationFailure(kind, errors.New("upstream 503"))
	}
	return "mock-" + string(kind), nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []*domain.GenerationRecord
	err     error
}

func (r *memoryRecorder) Record(ctx context.Context, rec *domain.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

func newTestState(gen domain.ViewGenerator, opts ...Option) *State {
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	orchestrator := service.NewImageGenerationService(gen, collector, zap.NewNop())
	return NewState(orchestrator, zap.NewNop(), append([]Option{WithMetrics(collector)}, opts...)...)
}

func pngUpload(name string) domain.UploadedImage {
	return domain.UploadedImage{Content: pngBytes, FileName: name, ContentType: "image/png"}
}

func TestState_InitiallyIdle(t *testing.T) {
	state := newTestState(&mockGenerator{})

	snap := state.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.HasImage)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Error)
	assert.True(t, snap.Results.IsEmpty())
}

func TestState_UploadReplacesImage(t *testing.T) {
	state := newTestState(&mockGenerator{})

	require.NoError(t, state.Upload(pngUpload("a.png")))
	require.NoError(t, state.Upload(pngUpload("b.png")))

	snap := state.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Equal(t, "b.png", snap.ImageName)
	assert.Empty(t, snap.Error)
	assert.True(t, snap.Results.IsEmpty())

	img, ok := state.Image()
	require.True(t, ok)
	assert.Equal(t, "b.png", img.FileName)
	assert.Equal(t, pngBytes, img.Content)
}

func TestState_GenerateWithoutImageIsNoop(t *testing.T) {
	gen := &mockGenerator{}
	state := newTestState(gen)
	before := state.Snapshot()

	err := state.Generate(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoImage)

	assert.Equal(t, before, state.Snapshot())
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestState_GenerateSucceeds(t *testing.T) {
	gen := &mockGenerator{}
	state := newTestState(gen)

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.Generate(context.Background()))

	snap := state.Snapshot()
	assert.Equal(t, PhaseSucceeded, snap.Phase)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, "mock-front", snap.Results.Front)
	assert.Equal(t, "mock-side", snap.Results.Side)
	assert.Equal(t, "mock-top", snap.Results.Top)
	assert.Equal(t, int32(3), gen.calls.Load())
}

func TestState_GenerateFailsOnOneView(t *testing.T) {
	gen := &mockGenerator{fail: map[domain.ViewKind]bool{domain.ViewTop: true}}
	state := newTestState(gen)

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.Generate(context.Background()))

	snap := state.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "could not generate top view", snap.Error)
	assert.True(t, snap.Results.IsEmpty())
}

func TestState_EncodingErrorShownVerbatim(t *testing.T) {
	gen := &mockGenerator{}
	state := newTestState(gen)

	require.NoError(t, state.Upload(domain.UploadedImage{FileName: "empty.png", ContentType: "image/png"}))
	require.NoError(t, state.Generate(context.Background()))

	snap := state.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Equal(t, "failed to parse file data: missing payload", snap.Error)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestState_UnknownErrorIsGeneric(t *testing.T) {
	state := newTestState(&mockGenerator{}, WithEncoder(func(img domain.UploadedImage) (domain.EncodedPayload, error) {
		return domain.EncodedPayload{}, errors.New("disk on fire")
	}))

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.Generate(context.Background()))

	assert.Equal(t, unknownErrorMessage, state.Snapshot().Error)
}

func TestState_RetryAfterFailureClearsError(t *testing.T) {
	gen := &mockGenerator{fail: map[domain.ViewKind]bool{domain.ViewSide: true}}
	state := newTestState(gen)

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.Generate(context.Background()))
	require.Equal(t, PhaseFailed, state.Snapshot().Phase)

	gen.fail = nil
	require.NoError(t, state.Generate(context.Background()))

	snap := state.Snapshot()
	assert.Equal(t, PhaseSucceeded, snap.Phase)
	assert.Empty(t, snap.Error)

	require.NoError(t, state.Upload(pngUpload("other.png")))
	snap = state.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.True(t, snap.Results.IsEmpty())
}

func TestState_RejectsConcurrentGeneration(t *testing.T) {
	gen := &mockGenerator{release: make(chan struct{})}
	state := newTestState(gen)

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.StartGenerate(context.Background()))

	snap := state.Snapshot()
	assert.Equal(t, PhaseGenerating, snap.Phase)
	assert.True(t, snap.IsLoading)
	assert.Empty(t, snap.Error)
	assert.True(t, snap.Results.IsEmpty())

	assert.ErrorIs(t, state.Generate(context.Background()), domain.ErrGenerationInProgress)
	assert.ErrorIs(t, state.StartGenerate(context.Background()), domain.ErrGenerationInProgress)
	assert.ErrorIs(t, state.Upload(pngUpload("other.png")), domain.ErrGenerationInProgress)

	close(gen.release)
	state.Wait()

	snap = state.Snapshot()
	assert.Equal(t, PhaseSucceeded, snap.Phase)
	assert.Equal(t, "part.png", snap.ImageName)
	assert.Equal(t, int32(3), gen.calls.Load())
}

func TestState_RecordsRuns(t *testing.T) {
	recorder := &memoryRecorder{}
	gen := &mockGenerator{}
	state := newTestState(gen, WithRecorder(recorder))

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.Generate(context.Background()))

	gen.fail = map[domain.ViewKind]bool{domain.ViewFront: true}
	require.NoError(t, state.Generate(context.Background()))

	require.Len(t, recorder.records, 2)
	assert.Equal(t, domain.StatusSucceeded, recorder.records[0].Status)
	assert.Equal(t, "part.png", recorder.records[0].FileName)
	assert.Equal(t, "image/png", recorder.records[0].MediaType)
	assert.True(t, recorder.records[0].Views.Complete())

	assert.Equal(t, domain.StatusFailed, recorder.records[1].Status)
	assert.Equal(t, "could not generate front view", recorder.records[1].Error)
	assert.True(t, recorder.records[1].Views.IsEmpty())
}

func TestState_RecorderFailureDoesNotAffectState(t *testing.T) {
	recorder := &memoryRecorder{err: errors.New("db down")}
	state := newTestState(&mockGenerator{}, WithRecorder(recorder))

	require.NoError(t, state.Upload(pngUpload("part.png")))
	require.NoError(t, state.Generate(context.Background()))

	assert.Equal(t, PhaseSucceeded, state.Snapshot().Phase)
}

func TestState_StartGenerateCompletesInBackground(t *testing.T) {
	state := newTestState(&mockGenerator{})
	require.NoError(t, state.Upload(pngUpload("part.png")))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, state.StartGenerate(ctx))

	require.Eventually(t, func() bool {
		return state.Snapshot().Phase == PhaseSucceeded
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}
