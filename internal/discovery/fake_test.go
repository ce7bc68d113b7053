package discovery

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"github.com/fentz26/artifactory-cleaner/internal/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func errConn() error {
	return &artifactory.ConnectionError{Op: "GET", Err: errors.New("connection refused")}
}

func errStatus(code int) error {
	return &artifactory.HTTPError{Method: http.MethodGet, URL: "http://x", StatusCode: code}
}

type searchCall struct {
	from, to time.Time
	repos    []string
}

// fakeService is an in-memory artifactory.Service.
type fakeService struct {
	mu sync.Mutex

	artifacts  map[string]*models.Artifact
	fetchErrs  map[string][]error
	fetchCalls map[string]int
	fetchDelay time.Duration

	hits      []models.SearchHit
	searchFn  func(from, to time.Time) ([]models.SearchHit, error)
	searches  []searchCall
	searchErr []error

	content     map[string][]byte
	deleted     []string
	deleteErrs  map[string][]error
	deleteCalls map[string]int

	inflight    int
	maxInflight int
}

func newFakeService() *fakeService {
	return &fakeService{
		artifacts:  make(map[string]*models.Artifact),
		fetchErrs:  make(map[string][]error),
		fetchCalls: make(map[string]int),
		content:    make(map[string][]byte),

		deleteErrs:  make(map[string][]error),
		deleteCalls: make(map[string]int),
	}
}

// add registers an artifact and a search hit for it.
func (f *fakeService) add(uri string, size int64, created time.Time) *models.Artifact {
	a := &models.Artifact{
		URI:         uri,
		Repo:        "libs",
		Path:        "/" + filepath.Base(uri),
		Size:        size,
		Created:     created,
		DownloadURI: "http://host/artifactory/libs/" + filepath.Base(uri),
	}
	f.artifacts[uri] = a
	f.hits = append(f.hits, models.SearchHit{URI: uri})
	return a
}

func (f *fakeService) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	return []models.Repository{
		{Key: "libs", Class: models.RepoClassLocal},
		{Key: "jcenter", Class: models.RepoClassRemote},
		{Key: "all", Class: models.RepoClassVirtual},
		{Key: "plugins", Class: models.RepoClassLocal},
	}, nil
}

func (f *fakeService) SearchDates(ctx context.Context, from, to time.Time, repos []string) ([]models.SearchHit, error) {
	f.mu.Lock()
	f.searches = append(f.searches, searchCall{from: from, to: to, repos: repos})
	if len(f.searchErr) > 0 {
		err := f.searchErr[0]
		f.searchErr = f.searchErr[1:]
		f.mu.Unlock()
		return nil, err
	}
	fn := f.searchFn
	hits := append([]models.SearchHit(nil), f.hits...)
	f.mu.Unlock()

	if fn != nil {
		return fn(from, to)
	}
	return hits, nil
}

func (f *fakeService) FetchArtifact(ctx context.Context, uri string) (*models.Artifact, error) {
	f.mu.Lock()
	f.fetchCalls[uri]++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	var err error
	if errs := f.fetchErrs[uri]; len(errs) > 0 {
		err = errs[0]
		if len(errs) > 1 {
			f.fetchErrs[uri] = errs[1:]
		}
	}
	a, ok := f.artifacts[uri]
	delay := f.fetchDelay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errStatus(http.StatusNotFound)
	}
	cp := *a
	return &cp, nil
}

// failFetch makes the next fetches of uri fail with errs in order. The last
// error repeats.
func (f *fakeService) failFetch(uri string, errs ...error) {
	f.fetchErrs[uri] = errs
}

func (f *fakeService) calls(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[uri]
}

func (f *fakeService) Download(ctx context.Context, a *models.Artifact, destPath string) error {
	f.mu.Lock()
	data, ok := f.content[a.URI]
	f.mu.Unlock()
	if !ok {
		return errStatus(http.StatusNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (f *fakeService) Delete(ctx context.Context, a *models.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls[a.URI]++
	if errs := f.deleteErrs[a.URI]; len(errs) > 0 {
		f.deleteErrs[a.URI] = errs[1:]
		return errs[0]
	}
	f.deleted = append(f.deleted, a.URI)
	return nil
}

// failDelete makes the next deletes of uri fail with errs in order.
func (f *fakeService) failDelete(uri string, errs ...error) {
	f.deleteErrs[uri] = errs
}
