package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assembly-worker/config"
	"assembly-worker/constant"
	"assembly-worker/dto"
	"assembly-worker/entities"
	"assembly-worker/pkg/media/mediatest"
	"assembly-worker/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return logger.WithContext(context.Background())
}

func newTestService(t *testing.T, fake *mediatest.Fake) (AssemblyService, repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := &config.Config{
		WorkDir:   filepath.Join(t.TempDir(), "work"),
		OutputDir: filepath.Join(t.TempDir(), "out"),
	}
	return NewAssemblyService(testContext(), store, fake, cfg), store
}

func makeSegments(t *testing.T, prefix string, n int, withScript bool) []entities.Segment {
	t.Helper()
	dir := t.TempDir()
	segments := make([]entities.Segment, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.mp4", prefix, i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("%s-seg-%d", prefix, i)), 0644); err != nil {
			t.Fatal(err)
		}
		segment := entities.Segment{Name: fmt.Sprintf("%s_shot_%d", prefix, i), FilePath: path}
		if withScript {
			segment.Script = fmt.Sprintf("line %d", i)
		}
		segments = append(segments, segment)
	}
	return segments
}

func waitTerminal(t *testing.T, svc AssemblyService, id uuid.UUID) dto.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := svc.Status(testContext(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if constant.JobStatus(status.Status).Terminal() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return dto.StatusResponse{}
}

func defaultOptions() entities.AssemblyOptions {
	return OptionsFromInput(nil)
}

func TestSubmitRejectsEmptySegments(t *testing.T) {
	svc, _ := newTestService(t, &mediatest.Fake{})

	_, err := svc.Submit(testContext(), uuid.New(), nil, defaultOptions())
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestAssemblyCompletes(t *testing.T) {
	fake := &mediatest.Fake{}
	svc, store := newTestService(t, fake)
	segments := makeSegments(t, "proj", 3, true)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusCompleted) {
		t.Fatalf("expected COMPLETED, got %s (%s)", status.Status, status.Error)
	}
	if status.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", status.Progress)
	}

	outputPath, err := svc.Output(testContext(), id)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	for i := 0; i < 3; i++ {
		marker := fmt.Sprintf("proj-seg-%d", i)
		if !strings.Contains(string(content), marker) {
			t.Errorf("output missing segment %d", i)
		}
	}

	job, err := store.FindJobById(testContext(), id)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if job.OutputPath != outputPath {
		t.Errorf("output path mismatch: %s vs %s", job.OutputPath, outputPath)
	}
	if len(job.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", job.Diagnostics)
	}
	if fake.Calls("burn") != 3 {
		t.Errorf("expected 3 subtitle burns, got %d", fake.Calls("burn"))
	}
	if fake.Calls("blend") != 2 {
		t.Errorf("expected 2 blends, got %d", fake.Calls("blend"))
	}
}

func TestBlendFailureFallsBackToConcat(t *testing.T) {
	fake := &mediatest.Fake{BlendErr: errors.New("xfade exploded")}
	svc, store := newTestService(t, fake)
	segments := makeSegments(t, "fb", 3, false)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusCompleted) {
		t.Fatalf("expected COMPLETED via fallback, got %s (%s)", status.Status, status.Error)
	}

	outputPath, err := svc.Output(testContext(), id)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	content, _ := os.ReadFile(outputPath)
	for i := 0; i < 3; i++ {
		if !strings.Contains(string(content), fmt.Sprintf("fb-seg-%d", i)) {
			t.Errorf("fallback output missing segment %d", i)
		}
	}

	if fake.Calls("concat") == 0 {
		t.Error("expected concat fallback to run")
	}

	job, _ := store.FindJobById(testContext(), id)
	found := false
	for _, note := range job.Diagnostics {
		if strings.Contains(note, "downgraded to concatenation") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected fallback diagnostic, got %v", job.Diagnostics)
	}
}

func TestReencodeFailureFailsJob(t *testing.T) {
	fake := &mediatest.Fake{ReencodeErr: errors.New("encoder crashed")}
	svc, _ := newTestService(t, fake)
	segments := makeSegments(t, "enc", 2, false)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusFailed) {
		t.Fatalf("expected FAILED, got %s", status.Status)
	}
	if status.Error == "" {
		t.Error("expected a failure reason")
	}
	if status.Progress != progressMergeDone {
		t.Errorf("expected progress frozen at %d, got %d", progressMergeDone, status.Progress)
	}

	if _, err := svc.Output(testContext(), id); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for failed job, got %v", err)
	}
}

func TestSubtitleFailureKeepsSegment(t *testing.T) {
	fake := &mediatest.Fake{BurnErr: errors.New("bad glyphs")}
	svc, store := newTestService(t, fake)
	segments := makeSegments(t, "sub", 2, true)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusCompleted) {
		t.Fatalf("expected COMPLETED, got %s (%s)", status.Status, status.Error)
	}

	outputPath, _ := svc.Output(testContext(), id)
	content, _ := os.ReadFile(outputPath)
	for i := 0; i < 2; i++ {
		if !strings.Contains(string(content), fmt.Sprintf("sub-seg-%d", i)) {
			t.Errorf("output missing segment %d after caption fallback", i)
		}
	}

	job, _ := store.FindJobById(testContext(), id)
	if len(job.Diagnostics) != 2 {
		t.Errorf("expected one diagnostic per failed caption, got %v", job.Diagnostics)
	}
}

func TestSingleSegmentSkipsBlend(t *testing.T) {
	fake := &mediatest.Fake{}
	svc, _ := newTestService(t, fake)
	segments := makeSegments(t, "one", 1, false)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusCompleted) {
		t.Fatalf("expected COMPLETED, got %s (%s)", status.Status, status.Error)
	}
	if fake.Calls("blend") != 0 {
		t.Errorf("expected no blend for a single segment, got %d", fake.Calls("blend"))
	}
	if fake.Calls("concat") != 0 {
		t.Errorf("expected no concat for a single segment, got %d", fake.Calls("concat"))
	}
}

func TestCancelBetweenStages(t *testing.T) {
	fake := &mediatest.Fake{
		BlendGate:    make(chan struct{}),
		BlendRelease: make(chan struct{}),
	}
	svc, _ := newTestService(t, fake)
	segments := makeSegments(t, "can", 2, false)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-fake.BlendGate
	if err := svc.Cancel(testContext(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	fake.BlendRelease <- struct{}{}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusFailed) {
		t.Fatalf("expected FAILED after cancellation, got %s", status.Status)
	}
	if !strings.Contains(status.Error, "cancelled") {
		t.Errorf("expected cancellation reason, got %q", status.Error)
	}

	// Cancelling a terminal job is a no-op.
	if err := svc.Cancel(testContext(), id); err != nil {
		t.Fatalf("cancel terminal job: %v", err)
	}
}

func TestOutputBeforeCompletion(t *testing.T) {
	fake := &mediatest.Fake{
		BlendGate:    make(chan struct{}),
		BlendRelease: make(chan struct{}),
	}
	svc, _ := newTestService(t, fake)
	segments := makeSegments(t, "nr", 2, false)

	id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-fake.BlendGate
	if _, err := svc.Output(testContext(), id); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	fake.BlendRelease <- struct{}{}

	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusCompleted) {
		t.Fatalf("expected COMPLETED, got %s (%s)", status.Status, status.Error)
	}
	if _, err := svc.Output(testContext(), id); err != nil {
		t.Fatalf("output after completion: %v", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	svc, _ := newTestService(t, &mediatest.Fake{})
	if _, err := svc.Status(testContext(), uuid.New()); !errors.Is(err, repository.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := svc.Output(testContext(), uuid.New()); !errors.Is(err, repository.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestConcurrentJobsAreIsolated(t *testing.T) {
	fake := &mediatest.Fake{}
	svc, _ := newTestService(t, fake)

	const n = 5
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		segments := makeSegments(t, fmt.Sprintf("p%d", i), 2, false)
		id, err := svc.Submit(testContext(), uuid.New(), segments, defaultOptions())
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids[i] = id
	}

	for i, id := range ids {
		status := waitTerminal(t, svc, id)
		if status.Status != string(constant.JobStatusCompleted) {
			t.Fatalf("job %d: expected COMPLETED, got %s (%s)", i, status.Status, status.Error)
		}
		outputPath, err := svc.Output(testContext(), id)
		if err != nil {
			t.Fatalf("job %d output: %v", i, err)
		}
		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("job %d read output: %v", i, err)
		}
		for j := 0; j < n; j++ {
			marker := fmt.Sprintf("p%d-seg-", j)
			if j == i && !strings.Contains(string(content), marker) {
				t.Errorf("job %d output missing its own segments", i)
			}
			if j != i && strings.Contains(string(content), marker) {
				t.Errorf("job %d output contains segments from job %d", i, j)
			}
		}
	}
}

func TestTiktokTrimSpec(t *testing.T) {
	fake := &mediatest.Fake{}
	svc, _ := newTestService(t, fake)
	segments := makeSegments(t, "tt", 2, false)

	opts := defaultOptions()
	opts.OptimizePlatform = constant.PlatformTiktok

	id, err := svc.Submit(testContext(), uuid.New(), segments, opts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	status := waitTerminal(t, svc, id)
	if status.Status != string(constant.JobStatusCompleted) {
		t.Fatalf("expected COMPLETED, got %s (%s)", status.Status, status.Error)
	}

	specs := fake.EncodeSpecs()
	if len(specs) != 1 {
		t.Fatalf("expected one reencode, got %d", len(specs))
	}
	if specs[0].Width != 1080 || specs[0].Height != 1920 {
		t.Errorf("unexpected tiktok resolution %dx%d", specs[0].Width, specs[0].Height)
	}
	if specs[0].MaxDuration != 180 {
		t.Errorf("expected tiktok max duration 180, got %f", specs[0].MaxDuration)
	}
}

func TestOptionsFromInputDefaults(t *testing.T) {
	opts := OptionsFromInput(nil)
	if !opts.AddTransitions || opts.TransitionType != constant.TransitionFade || opts.TransitionDuration != 0.8 {
		t.Errorf("unexpected transition defaults: %+v", opts)
	}
	if !opts.AddSubtitles || opts.SubtitlePosition != constant.SubtitlePositionBottom || opts.SubtitleFontSize != 48 {
		t.Errorf("unexpected subtitle defaults: %+v", opts)
	}
	if opts.OptimizePlatform != constant.PlatformYoutube {
		t.Errorf("unexpected platform default: %s", opts.OptimizePlatform)
	}

	off := false
	in := &dto.OptionsInput{
		AddTransitions:   &off,
		TransitionType:   "not-a-transition",
		SubtitlePosition: "sideways",
		SubtitleFontSize: -3,
	}
	opts = OptionsFromInput(in)
	if opts.AddTransitions {
		t.Error("expected transitions disabled")
	}
	if opts.TransitionType != constant.TransitionFade {
		t.Errorf("invalid transition type should fall back to fade, got %s", opts.TransitionType)
	}
	if opts.SubtitlePosition != constant.SubtitlePositionBottom || opts.SubtitleFontSize != 48 {
		t.Errorf("invalid subtitle options should keep defaults: %+v", opts)
	}
}
