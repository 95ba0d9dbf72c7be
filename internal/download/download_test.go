package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	splithttp "github.com/tanq16/splitget/internal/downloaders/http"
	"github.com/tanq16/splitget/internal/segment"
	"github.com/tanq16/splitget/internal/utils"
)

// memSource serves ranges of an in-memory resource.
type memSource struct {
	data  []byte
	fail  func(low int64) error
	short bool
	calls atomic.Int32
}

func (m *memSource) Probe(ctx context.Context, rawURL string) (*utils.TargetInfo, error) {
	return &utils.TargetInfo{FinalURL: rawURL, FileName: "file.bin", ContentLength: int64(len(m.data))}, nil
}

func (m *memSource) FetchRange(ctx context.Context, target string, low, high int64) (io.ReadCloser, error) {
	m.calls.Add(1)
	if m.fail != nil {
		if err := m.fail(low); err != nil {
			return nil, err
		}
	}
	end := min(high+1, int64(len(m.data)))
	part := m.data[low:end]
	if m.short {
		part = part[:len(part)/2]
	}
	return io.NopCloser(bytes.NewReader(part)), nil
}

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func newPlan(t *testing.T, source utils.Source, rawURL, dir string, segments int) *segment.Plan {
	t.Helper()
	target, err := source.Probe(context.Background(), rawURL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	plan, err := segment.NewPlan(*target, dir, segments)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if _, err := plan.AssignTasks(); err != nil {
		t.Fatalf("AssignTasks: %v", err)
	}
	return plan
}

func newCoordinator(source utils.Source, segments int) (*Coordinator, *Progress) {
	progress := NewProgress(segments)
	return &Coordinator{
		Fetcher:   &Fetcher{Source: source, Progress: progress, BufferSize: 64},
		Assembler: &Assembler{},
	}, progress
}

func assertNoPartials(t *testing.T, plan *segment.Plan) {
	t.Helper()
	for i := range plan.Segments {
		if _, err := os.Stat(plan.PartialPath(i)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("partial %d still present", i)
		}
	}
}

func TestFetchFreshSegment(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 3)
	progress := NewProgress(3)
	fetcher := &Fetcher{Source: source, Progress: progress, BufferSize: 100}

	if err := fetcher.Fetch(context.Background(), plan.Tasks[0]); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := os.ReadFile(plan.PartialPath(0))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data[:333]) {
		t.Errorf("partial has %d bytes, want 333 matching bytes", len(got))
	}
	if progress.Segment(0) != 333 || progress.Total() != 333 {
		t.Errorf("progress = %d/%d, want 333", progress.Segment(0), progress.Total())
	}
}

func TestFetchLastSegment(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 3)
	fetcher := &Fetcher{Source: source}
	if err := fetcher.Fetch(context.Background(), plan.Tasks[2]); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, _ := os.ReadFile(plan.PartialPath(2))
	if !bytes.Equal(got, data[666:]) {
		t.Errorf("last partial has %d bytes, want 334", len(got))
	}
}

func TestFetchRefusesExistingPartial(t *testing.T) {
	source := &memSource{data: testData(1000)}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 3)
	if err := os.WriteFile(plan.PartialPath(0), nil, 0644); err != nil {
		t.Fatal(err)
	}
	fetcher := &Fetcher{Source: source}
	err := fetcher.Fetch(context.Background(), plan.Tasks[0])
	if !errors.Is(err, ErrPartialExists) {
		t.Errorf("expected ErrPartialExists, got %v", err)
	}
}

func TestFetchRequestFailureCreatesNoPartial(t *testing.T) {
	source := &memSource{data: testData(1000), fail: func(int64) error { return errors.New("connection refused") }}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 3)
	fetcher := &Fetcher{Source: source}
	if err := fetcher.Fetch(context.Background(), plan.Tasks[1]); err == nil {
		t.Fatal("expected request error")
	}
	if _, err := os.Stat(plan.PartialPath(1)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed request must not leave a partial: %v", err)
	}
}

func TestFetchResumesEmptyPartial(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	dir := t.TempDir()
	path := segment.PartialPath(dir, "file.bin", 3, 1)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	plan := newPlan(t, source, "mem://file.bin", dir, 3)
	fetcher := &Fetcher{Source: source}
	if err := fetcher.Fetch(context.Background(), plan.Tasks[1]); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data[333:666]) {
		t.Errorf("partial has %d bytes, want 333 matching bytes", len(got))
	}
}

func TestFetchResumeAppends(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	dir := t.TempDir()
	path := segment.PartialPath(dir, "file.bin", 3, 1)
	if err := os.WriteFile(path, data[333:433], 0644); err != nil {
		t.Fatal(err)
	}
	plan := newPlan(t, source, "mem://file.bin", dir, 3)
	task := plan.Tasks[1]
	if task.Range.Low != 433 || task.Offset != 100 {
		t.Fatalf("unexpected resumed task %+v", task)
	}
	progress := NewProgress(3)
	fetcher := &Fetcher{Source: source, Progress: progress}
	if err := fetcher.Fetch(context.Background(), task); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data[333:666]) {
		t.Errorf("resumed partial has %d bytes, want 333 matching bytes", len(got))
	}
	if progress.Segment(1) != 233 {
		t.Errorf("expected 233 new bytes reported, got %d", progress.Segment(1))
	}
}

func TestFetchResumeDetectsChangedPartial(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	dir := t.TempDir()
	path := segment.PartialPath(dir, "file.bin", 3, 1)
	os.WriteFile(path, data[333:433], 0644)
	plan := newPlan(t, source, "mem://file.bin", dir, 3)
	os.WriteFile(path, data[333:443], 0644)

	fetcher := &Fetcher{Source: source}
	if err := fetcher.Fetch(context.Background(), plan.Tasks[1]); !errors.Is(err, ErrPartialChanged) {
		t.Errorf("expected ErrPartialChanged, got %v", err)
	}
}

func TestFetchShortBodyKeepsPartial(t *testing.T) {
	source := &memSource{data: testData(1000), short: true}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 2)
	fetcher := &Fetcher{Source: source}
	err := fetcher.Fetch(context.Background(), plan.Tasks[0])
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	info, statErr := os.Stat(plan.PartialPath(0))
	if statErr != nil || info.Size() != 250 {
		t.Errorf("expected truncated partial of 250 bytes to remain, got %v %v", info, statErr)
	}
}

func TestFetchWithLimiter(t *testing.T) {
	data := testData(4096)
	source := &memSource{data: data}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 1)
	fetcher := &Fetcher{Source: source, Limiter: NewLimiter(1<<20, 512), BufferSize: 512}
	if err := fetcher.Fetch(context.Background(), plan.Tasks[0]); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, _ := os.ReadFile(plan.PartialPath(0))
	if !bytes.Equal(got, data) {
		t.Error("limited fetch produced wrong content")
	}
}

func TestCoordinatorRunOverHTTP(t *testing.T) {
	data := testData(1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(data))
	}))
	defer server.Close()

	source := splithttp.NewHTTPSource(utils.HTTPClientConfig{})
	dir := t.TempDir()
	plan := newPlan(t, source, server.URL+"/file.bin", dir, 3)
	coordinator, progress := newCoordinator(source, 3)

	if err := coordinator.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "file.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("output has %d bytes, want identical 1000", len(got))
	}
	if progress.Total() != 1000 {
		t.Errorf("progress total %d, want 1000", progress.Total())
	}
	assertNoPartials(t, plan)
	if _, err := os.Stat(filepath.Join(dir, "file.bin"+utils.AssemblingSuffix)); !errors.Is(err, os.ErrNotExist) {
		t.Error("assembly temp file left behind")
	}
}

func TestCoordinatorResumesMixedState(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	dir := t.TempDir()
	os.WriteFile(segment.PartialPath(dir, "file.bin", 3, 0), data[:333], 0644)
	os.WriteFile(segment.PartialPath(dir, "file.bin", 3, 1), data[333:433], 0644)
	plan := newPlan(t, source, "mem://file.bin", dir, 3)
	if len(plan.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(plan.Tasks))
	}
	coordinator, _ := newCoordinator(source, 3)
	if err := coordinator.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "file.bin"))
	if !bytes.Equal(got, data) {
		t.Error("resumed output differs from source")
	}
	assertNoPartials(t, plan)
}

func TestCoordinatorAllSegmentsComplete(t *testing.T) {
	data := testData(1000)
	source := &memSource{data: data}
	dir := t.TempDir()
	os.WriteFile(segment.PartialPath(dir, "file.bin", 3, 0), data[:333], 0644)
	os.WriteFile(segment.PartialPath(dir, "file.bin", 3, 1), data[333:666], 0644)
	os.WriteFile(segment.PartialPath(dir, "file.bin", 3, 2), data[666:], 0644)
	plan := newPlan(t, source, "mem://file.bin", dir, 3)
	if len(plan.Tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(plan.Tasks))
	}
	coordinator, _ := newCoordinator(source, 3)
	if err := coordinator.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if source.calls.Load() != 0 {
		t.Errorf("expected zero fetches, got %d", source.calls.Load())
	}
	got, _ := os.ReadFile(filepath.Join(dir, "file.bin"))
	if !bytes.Equal(got, data) {
		t.Error("output assembled from complete partials differs")
	}
	assertNoPartials(t, plan)
}

func TestCoordinatorReportsFailedSegment(t *testing.T) {
	source := &memSource{data: testData(1000), fail: func(low int64) error {
		if low == 333 {
			return errors.New("connection reset")
		}
		return nil
	}}
	dir := t.TempDir()
	plan := newPlan(t, source, "mem://file.bin", dir, 3)
	coordinator, _ := newCoordinator(source, 3)

	err := coordinator.Run(context.Background(), plan)
	var segErr *SegmentError
	if !errors.As(err, &segErr) || segErr.Index != 1 {
		t.Fatalf("expected SegmentError for segment 1, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "file.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Error("output must not exist after a failed fetch")
	}
}

func TestCoordinatorSecondRunRecoversFailedSegment(t *testing.T) {
	data := testData(1000)
	dir := t.TempDir()
	failing := &memSource{data: data, fail: func(low int64) error {
		if low == 333 {
			return errors.New("connection reset")
		}
		return nil
	}}
	plan := newPlan(t, failing, "mem://file.bin", dir, 3)
	coordinator, _ := newCoordinator(failing, 3)
	if err := coordinator.Run(context.Background(), plan); err == nil {
		t.Fatal("first run should fail")
	}

	// a partial left empty by a cancelled or failed segment must not block the next run
	os.WriteFile(segment.PartialPath(dir, "file.bin", 3, 1), nil, 0644)

	healthy := &memSource{data: data}
	plan = newPlan(t, healthy, "mem://file.bin", dir, 3)
	coordinator, _ = newCoordinator(healthy, 3)
	if err := coordinator.Run(context.Background(), plan); err != nil {
		t.Fatalf("second run: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "file.bin"))
	if !bytes.Equal(got, data) {
		t.Error("recovered output differs from source")
	}
	assertNoPartials(t, plan)
}

func TestCoordinatorCancelled(t *testing.T) {
	source := &memSource{data: testData(1000)}
	plan := newPlan(t, source, "mem://file.bin", t.TempDir(), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	coordinator := &Coordinator{
		Fetcher:   &Fetcher{Source: source, Limiter: NewLimiter(1, 64), BufferSize: 64},
		Assembler: &Assembler{},
	}
	if err := coordinator.Run(ctx, plan); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestVerifyDetectsIncomplete(t *testing.T) {
	data := testData(1000)
	dir := t.TempDir()
	plan := newPlan(t, &memSource{data: data}, "mem://file.bin", dir, 2)
	os.WriteFile(plan.PartialPath(0), data[:500], 0644)
	os.WriteFile(plan.PartialPath(1), data[500:900], 0644)
	err := Verify(plan)
	var segErr *SegmentError
	if !errors.Is(err, ErrIncomplete) || !errors.As(err, &segErr) || segErr.Index != 1 {
		t.Errorf("expected incomplete segment 1, got %v", err)
	}
}

func TestAssemblerRefusesExistingOutput(t *testing.T) {
	data := testData(100)
	dir := t.TempDir()
	plan := newPlan(t, &memSource{data: data}, "mem://file.bin", dir, 1)
	os.WriteFile(plan.PartialPath(0), data, 0644)
	os.WriteFile(filepath.Join(dir, "file.bin"), []byte("old"), 0644)

	err := (&Assembler{}).Assemble(plan)
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("expected ErrOutputExists, got %v", err)
	}
	if got, _ := os.ReadFile(filepath.Join(dir, "file.bin")); string(got) != "old" {
		t.Error("existing output was modified")
	}
	if _, err := os.Stat(plan.PartialPath(0)); err != nil {
		t.Error("partial removed after refused assembly")
	}
}

func TestAssemblerKeepsPartialsOnFailure(t *testing.T) {
	data := testData(1000)
	dir := t.TempDir()
	plan := newPlan(t, &memSource{data: data}, "mem://file.bin", dir, 3)
	os.WriteFile(plan.PartialPath(0), data[:333], 0644)
	os.WriteFile(plan.PartialPath(2), data[666:], 0644)

	err := (&Assembler{}).Assemble(plan)
	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("expected AssemblyError, got %v", err)
	}
	for _, name := range []string{"file.bin", "file.bin" + utils.AssemblingSuffix} {
		if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should not exist", name)
		}
	}
	for _, i := range []int{0, 2} {
		if _, err := os.Stat(plan.PartialPath(i)); err != nil {
			t.Errorf("partial %d should be kept: %v", i, err)
		}
	}
}

func TestProgressConcurrentAdds(t *testing.T) {
	progress := NewProgress(4)
	var wg sync.WaitGroup
	for i := range 4 {
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				progress.Add(i, 10)
			}()
		}
	}
	wg.Wait()
	if progress.Total() != 2000 {
		t.Errorf("total %d, want 2000", progress.Total())
	}
	for i := range 4 {
		if progress.Segment(i) != 500 {
			t.Errorf("segment %d = %d, want 500", i, progress.Segment(i))
		}
	}
	progress.Add(9, 1)
	if progress.Total() != 2000 {
		t.Error("out-of-range segment must be ignored")
	}
}
