package cleaner

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"github.com/fentz26/artifactory-cleaner/internal/clock"
	"github.com/fentz26/artifactory-cleaner/internal/discovery"
	"github.com/fentz26/artifactory-cleaner/internal/filter"
	"github.com/fentz26/artifactory-cleaner/internal/metrics"
	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ts(t time.Time) *time.Time { return &t }

func daysAgo(n int) time.Time { return testNow.AddDate(0, 0, -n) }

// fakeService serves the artifacts created inside each searched window.
type fakeService struct {
	mu        sync.Mutex
	artifacts map[string]*models.Artifact
	content   map[string][]byte
	deleteErr map[string]error
	deleted   []string
}

func newFakeService() *fakeService {
	return &fakeService{
		artifacts: make(map[string]*models.Artifact),
		content:   make(map[string][]byte),
		deleteErr: make(map[string]error),
	}
}

func (f *fakeService) add(name string, created time.Time, body string) *models.Artifact {
	a := &models.Artifact{
		URI:         "http://host/artifactory/api/storage/libs/" + name,
		Repo:        "libs",
		Path:        "/" + name,
		Size:        int64(len(body)),
		Created:     created,
		DownloadURI: "http://host/artifactory/libs/" + name,
	}
	f.artifacts[a.URI] = a
	f.content[a.URI] = []byte(body)
	return a
}

func (f *fakeService) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	return nil, nil
}

func (f *fakeService) SearchDates(ctx context.Context, from, to time.Time, repos []string) ([]models.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []models.SearchHit
	for uri, a := range f.artifacts {
		if !a.Created.Before(from) && a.Created.Before(to) {
			hits = append(hits, models.SearchHit{URI: uri})
		}
	}
	return hits, nil
}

func (f *fakeService) FetchArtifact(ctx context.Context, uri string) (*models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[uri]
	if !ok {
		return nil, &artifactory.HTTPError{Method: http.MethodGet, URL: uri, StatusCode: http.StatusNotFound}
	}
	cp := *a
	return &cp, nil
}

func (f *fakeService) Download(ctx context.Context, a *models.Artifact, destPath string) error {
	f.mu.Lock()
	data, ok := f.content[a.URI]
	f.mu.Unlock()
	if !ok {
		return &artifactory.HTTPError{Method: http.MethodGet, URL: a.DownloadURI, StatusCode: http.StatusNotFound}
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (f *fakeService) Delete(ctx context.Context, a *models.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[a.URI]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, a.URI)
	return nil
}

type recordedDecision struct {
	uri         string
	disposition models.Disposition
	criteria    []string
	details     string
}

type fakeRecorder struct {
	decisions []recordedDecision
}

func (r *fakeRecorder) Record(a *models.Artifact, d models.Disposition, criteria []string, details string) (*models.Decision, error) {
	r.decisions = append(r.decisions, recordedDecision{uri: a.URI, disposition: d, criteria: criteria, details: details})
	return &models.Decision{URI: a.URI, Disposition: d}, nil
}

func (r *fakeRecorder) count(d models.Disposition) int {
	n := 0
	for _, rec := range r.decisions {
		if rec.disposition == d {
			n++
		}
	}
	return n
}

type fakeMirror struct {
	mu       sync.Mutex
	uploaded []string
	err      error
}

func (m *fakeMirror) Upload(ctx context.Context, a *models.Artifact, localPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.uploaded = append(m.uploaded, localPath)
	return "archive/" + a.Name(), nil
}

func newTestRunner(t *testing.T, svc artifactory.Service, opts ...Option) *Runner {
	t.Helper()
	ctrl, err := discovery.New(svc, &discovery.Config{
		Concurrency: 2,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		ChunkDays:   90,
	}, discovery.WithClock(clock.Fake(testNow)))
	require.NoError(t, err)
	return NewRunner(ctrl, opts...)
}

func cleanPlan(cutoff time.Time) Plan {
	return Plan{
		Mode:     ModeClean,
		From:     daysAgo(365),
		Criteria: Criteria{CreatedBefore: ts(cutoff)},
	}
}

func TestCriteriaSearchEnd(t *testing.T) {
	_, err := Criteria{}.SearchEnd()
	assert.ErrorIs(t, err, ErrNoCutoff)

	end, err := Criteria{
		CreatedBefore:    ts(daysAgo(10)),
		DownloadedBefore: ts(daysAgo(40)),
		LastUsedBefore:   ts(daysAgo(20)),
	}.SearchEnd()
	require.NoError(t, err)
	assert.Equal(t, daysAgo(40), end)
}

func TestCriteriaMatches(t *testing.T) {
	cutoff := daysAgo(30)
	a := &models.Artifact{
		Created:        daysAgo(100),
		LastModified:   ts(daysAgo(50)),
		LastDownloaded: ts(daysAgo(10)),
	}
	never := &models.Artifact{Created: daysAgo(100)}

	tests := []struct {
		name     string
		criteria Criteria
		artifact *models.Artifact
		want     bool
	}{
		{"no cutoffs", Criteria{}, a, true},
		{"created before", Criteria{CreatedBefore: &cutoff}, a, true},
		{"created after", Criteria{CreatedBefore: ts(daysAgo(200))}, a, false},
		{"modified before", Criteria{ModifiedBefore: &cutoff}, a, true},
		{"modified falls back to created", Criteria{ModifiedBefore: ts(daysAgo(99))}, never, true},
		{"downloaded recently", Criteria{DownloadedBefore: &cutoff}, a, false},
		{"never downloaded", Criteria{DownloadedBefore: &cutoff}, never, true},
		{"last used recently", Criteria{LastUsedBefore: &cutoff}, a, false},
		{"last used long ago", Criteria{LastUsedBefore: &cutoff}, never, true},
		{"every cutoff must hold", Criteria{CreatedBefore: &cutoff, DownloadedBefore: &cutoff}, a, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(tt.artifact))
		})
	}
}

func TestCriteriaDescribe(t *testing.T) {
	c := Criteria{CreatedBefore: ts(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))}
	assert.Equal(t, []string{"created_before=2023-01-01T00:00:00Z"}, c.Describe())
}

func TestCleanDeletesMatchingArtifacts(t *testing.T) {
	svc := newFakeService()
	old := svc.add("old.jar", daysAgo(200), "aaaa")
	kept := svc.add("kept.jar", daysAgo(150), "bb")
	kept.LastModified = ts(daysAgo(5))
	svc.add("keep-me.jar", daysAgo(120), "c")

	engine, err := filter.NewEngine(filter.MustRule(filter.Exclude, 1, filter.FieldName, `^keep-me`))
	require.NoError(t, err)

	rec := &fakeRecorder{}
	col := metrics.NewCollector(nil)
	r := newTestRunner(t, svc, WithRecorder(rec), WithMetrics(col))

	plan := cleanPlan(daysAgo(90))
	plan.Criteria.ModifiedBefore = ts(daysAgo(90))
	plan.Filter = engine
	rep, err := r.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{old.URI}, svc.deleted)
	assert.Equal(t, 1, rep.Totals[models.DispositionDeleted].Count)
	assert.Equal(t, int64(4), rep.Totals[models.DispositionDeleted].Bytes)
	assert.Equal(t, 2, rep.Totals[models.DispositionSkipped].Count)
	assert.Equal(t, int64(len("bb")+len("c")), rep.Totals[models.DispositionSkipped].Bytes)
	assert.Empty(t, rep.Failures)

	assert.Equal(t, 1, rec.count(models.DispositionDeleted))
	assert.Equal(t, 2, rec.count(models.DispositionSkipped))
	assert.NotEmpty(t, rec.decisions[0].criteria)

	families, err := col.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "artifactory_cleaner_decisions_total")
}

func TestCleanDryRunDeletesNothing(t *testing.T) {
	svc := newFakeService()
	svc.add("old.jar", daysAgo(200), "aaaa")

	var out bytes.Buffer
	r := newTestRunner(t, svc, WithOutput(&out))
	plan := cleanPlan(daysAgo(90))
	plan.DryRun = true
	plan.ArchiveTo = t.TempDir()

	rep, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, svc.deleted)
	assert.Equal(t, 1, rep.Totals[models.DispositionDeleted].Count)
	assert.Equal(t, 1, rep.Totals[models.DispositionArchived].Count)
	assert.Contains(t, out.String(), "Would archive libs/old.jar to ")
	assert.Contains(t, out.String(), "Would delete libs/old.jar")

	entries, err := os.ReadDir(plan.ArchiveTo)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiveModeRequiresDirectory(t *testing.T) {
	r := newTestRunner(t, newFakeService())
	plan := cleanPlan(daysAgo(90))
	plan.Mode = ModeArchive
	_, err := r.Run(context.Background(), plan)
	assert.Error(t, err)
}

func TestRunRequiresCutoff(t *testing.T) {
	r := newTestRunner(t, newFakeService())
	_, err := r.Run(context.Background(), Plan{Mode: ModeClean, From: daysAgo(365)})
	assert.ErrorIs(t, err, ErrNoCutoff)
}

func TestArchiveWritesAndMirrors(t *testing.T) {
	svc := newFakeService()
	a := svc.add("lib.jar", daysAgo(200), "payload")

	mirror := &fakeMirror{}
	rec := &fakeRecorder{}
	r := newTestRunner(t, svc, WithMirror(mirror), WithRecorder(rec))
	plan := cleanPlan(daysAgo(90))
	plan.Mode = ModeArchive
	plan.ArchiveTo = t.TempDir()

	rep, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, svc.deleted, "archive leaves artifacts in place")
	assert.Equal(t, 1, rep.Totals[models.DispositionArchived].Count)

	data, err := os.ReadFile(filepath.Join(plan.ArchiveTo, "lib.jar"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.Len(t, mirror.uploaded, 1)
	require.Len(t, rec.decisions, 1)
	assert.Equal(t, a.URI, rec.decisions[0].uri)
	assert.Contains(t, rec.decisions[0].details, "mirrored as archive/lib.jar")
}

func TestArchiveFailurePreventsDelete(t *testing.T) {
	svc := newFakeService()
	broken := svc.add("broken.jar", daysAgo(200), "xx")
	delete(svc.content, broken.URI)
	ok := svc.add("ok.jar", daysAgo(210), "yy")

	r := newTestRunner(t, svc)
	plan := cleanPlan(daysAgo(90))
	plan.ArchiveTo = t.TempDir()

	rep, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{ok.URI}, svc.deleted)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, broken.URI, rep.Failures[0].Artifact.URI)
	assert.Equal(t, 1, rep.Totals[models.DispositionFailed].Count)
	assert.Equal(t, 1, rep.Totals[models.DispositionArchived].Count)
	assert.Equal(t, 1, rep.Totals[models.DispositionDeleted].Count)
}

func TestMirrorFailureCountsAsFailed(t *testing.T) {
	svc := newFakeService()
	svc.add("lib.jar", daysAgo(200), "payload")

	r := newTestRunner(t, svc, WithMirror(&fakeMirror{err: errors.New("bucket unavailable")}))
	plan := cleanPlan(daysAgo(90))
	plan.ArchiveTo = t.TempDir()

	rep, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, svc.deleted)
	assert.Equal(t, 1, rep.Totals[models.DispositionFailed].Count)
}

func TestDeleteFailureContinues(t *testing.T) {
	svc := newFakeService()
	denied := svc.add("denied.jar", daysAgo(200), "a")
	svc.deleteErr[denied.URI] = &artifactory.HTTPError{Method: http.MethodDelete, URL: denied.DownloadURI, StatusCode: http.StatusForbidden}
	other := svc.add("other.jar", daysAgo(220), "b")

	r := newTestRunner(t, svc)
	rep, err := r.Run(context.Background(), cleanPlan(daysAgo(90)))
	require.NoError(t, err)

	assert.Equal(t, []string{other.URI}, svc.deleted)
	require.Len(t, rep.Failures, 1)
	var httpErr *artifactory.HTTPError
	assert.True(t, errors.As(rep.Failures[0], &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestRunCancelled(t *testing.T) {
	svc := newFakeService()
	svc.add("old.jar", daysAgo(200), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRunner(t, svc)
	_, err := r.Run(ctx, cleanPlan(daysAgo(90)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, svc.deleted)
}

func TestReportTalliesAndSummary(t *testing.T) {
	rep := newReport()
	assert.Equal(t, "no artifacts", rep.Summary())

	rep.add(models.DispositionArchived, 1024)
	rep.add(models.DispositionSkipped, 1)

	labels := func(mode Mode) []string {
		var out []string
		for _, tally := range rep.Tallies(mode) {
			out = append(out, tally.Label)
		}
		return out
	}
	assert.Equal(t, []string{"archived", "skipped"}, labels(ModeArchive))
	assert.Equal(t, []string{"archived", "deleted", "skipped"}, labels(ModeClean))
	assert.Equal(t, "archived 1 (1.0 KiB), skipped 1 (1 B)", rep.Summary())
}

func TestValidateArchiveDir(t *testing.T) {
	dir := t.TempDir()
	abs, err := ValidateArchiveDir(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	_, err = ValidateArchiveDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = ValidateArchiveDir(file)
	assert.Error(t, err)
}
