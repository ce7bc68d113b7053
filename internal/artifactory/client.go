package artifactory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// searchDateFields are the date fields a usage search matches on.
const searchDateFields = "created,lastModified,lastDownloaded"

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 4096

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	// Endpoint is the base URL of the service, e.g. https://host/artifactory.
	Endpoint string
	// APIKey is sent in the X-JFrog-Art-Api header when set.
	APIKey string
	// Timeout bounds metadata requests. Downloads are bounded by ctx only.
	Timeout time.Duration
	// RequestsPerSecond paces all requests; zero disables pacing.
	RequestsPerSecond float64
	// Burst is the number of requests allowed above the steady rate.
	Burst int
}

// Client talks to the Artifactory REST API.
type Client struct {
	base     *url.URL
	apiKey   string
	http     *http.Client
	transfer *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a client for the configured endpoint.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("artifactory endpoint is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q must be an http or https URL", cfg.Endpoint)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		base:     base,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		transfer: &http.Client{},
		limiter:  limiter,
		logger:   logger.With(zap.String("component", "artifactory_client")),
	}, nil
}

// resolve turns a path or absolute URI into a request URL.
func (c *Client) resolve(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.base.String() + "/" + strings.TrimLeft(ref, "/")
}

// do sends a request and returns the response for 2xx statuses. Transport
// failures become *ConnectionError, failing statuses *HTTPError.
func (c *Client) do(ctx context.Context, hc *http.Client, method, ref string, query url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := c.resolve(ref)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-JFrog-Art-Api", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnectionError{Op: method + " " + target, Err: err}
	}
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, ref string, query url.Values, out interface{}) error {
	resp, err := c.do(ctx, c.http, http.MethodGet, ref, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &ConnectionError{Op: "read " + ref, Err: err}
		}
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	return nil
}

type repositoryJSON struct {
	Key          string   `json:"key"`
	Type         string   `json:"type"`
	RClass       string   `json:"rclass"`
	URL          string   `json:"url"`
	Description  string   `json:"description"`
	PackageType  string   `json:"packageType"`
	Repositories []string `json:"repositories"`
}

// ListRepositories implements Service.
func (c *Client) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	var raw []repositoryJSON
	if err := c.getJSON(ctx, "/api/repositories", nil, &raw); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	repos := make([]models.Repository, 0, len(raw))
	for _, r := range raw {
		class := r.RClass
		if class == "" {
			class = r.Type
		}
		repos = append(repos, models.Repository{
			Key:          r.Key,
			PackageType:  r.PackageType,
			Class:        models.RepoClass(strings.ToLower(class)),
			URL:          r.URL,
			Description:  r.Description,
			Repositories: r.Repositories,
		})
	}
	return repos, nil
}

type searchResultJSON struct {
	Results []struct {
		URI            string `json:"uri"`
		LastDownloaded string `json:"lastDownloaded"`
	} `json:"results"`
}

// SearchDates implements Service. A 404 is returned as is; callers decide
// whether it means "no results".
func (c *Client) SearchDates(ctx context.Context, from, to time.Time, repos []string) ([]models.SearchHit, error) {
	query := url.Values{}
	query.Set("dateFields", searchDateFields)
	query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	if len(repos) > 0 {
		query.Set("repos", strings.Join(repos, ","))
	}

	var raw searchResultJSON
	if err := c.getJSON(ctx, "/api/search/dates", query, &raw); err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(raw.Results))
	for _, r := range raw.Results {
		hit := models.SearchHit{URI: r.URI}
		if t, ok := parseTime(r.LastDownloaded); ok {
			hit.LastDownloaded = &t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// flexInt64 accepts both JSON numbers and numeric strings; the storage API
// reports sizes as strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse size %q: %w", s, err)
	}
	*f = flexInt64(n)
	return nil
}

type artifactJSON struct {
	URI          string    `json:"uri"`
	DownloadURI  string    `json:"downloadUri"`
	Repo         string    `json:"repo"`
	Path         string    `json:"path"`
	Created      string    `json:"created"`
	LastModified string    `json:"lastModified"`
	LastUpdated  string    `json:"lastUpdated"`
	MimeType     string    `json:"mimeType"`
	Size         flexInt64 `json:"size"`
	Checksums    struct {
		SHA1   string `json:"sha1"`
		MD5    string `json:"md5"`
		SHA256 string `json:"sha256"`
	} `json:"checksums"`
}

// FetchArtifact implements Service.
func (c *Client) FetchArtifact(ctx context.Context, uri string) (*models.Artifact, error) {
	var raw artifactJSON
	if err := c.getJSON(ctx, uri, nil, &raw); err != nil {
		return nil, err
	}
	created, ok := parseTime(raw.Created)
	if !ok {
		return nil, fmt.Errorf("artifact %s: missing or invalid created date %q", uri, raw.Created)
	}
	if raw.Size < 0 {
		return nil, fmt.Errorf("artifact %s: negative size %d", uri, raw.Size)
	}
	a := &models.Artifact{
		URI:         raw.URI,
		Repo:        raw.Repo,
		Path:        raw.Path,
		Size:        int64(raw.Size),
		Created:     created,
		DownloadURI: raw.DownloadURI,
		MimeType:    raw.MimeType,
		Checksums: models.Checksums{
			SHA1:   raw.Checksums.SHA1,
			MD5:    raw.Checksums.MD5,
			SHA256: raw.Checksums.SHA256,
		},
	}
	if a.URI == "" {
		a.URI = uri
	}
	if t, ok := parseTime(raw.LastModified); ok {
		a.LastModified = &t
	}
	if t, ok := parseTime(raw.LastUpdated); ok {
		a.LastUpdated = &t
	}
	return a, nil
}

// trackedWriter remembers the first error its writer returned.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

// copyBody copies a response body to dst. Failures reading the body are
// connection errors; failures writing dst are local and returned as is.
func copyBody(dst io.Writer, body io.Reader, op string) error {
	tw := &trackedWriter{w: dst}
	if _, err := io.Copy(tw, body); err != nil {
		if tw.err != nil {
			return fmt.Errorf("write %s: %w", op, tw.err)
		}
		return &ConnectionError{Op: op, Err: err}
	}
	return nil
}

// Download implements Service. The file is written under a temporary name
// and renamed into place once complete.
func (c *Client) Download(ctx context.Context, a *models.Artifact, destPath string) error {
	if a.DownloadURI == "" {
		return fmt.Errorf("artifact %s has no download uri", a)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	resp, err := c.do(ctx, c.transfer, http.MethodGet, a.DownloadURI, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := copyBody(tmp, resp.Body, "download "+a.DownloadURI); err != nil {
		tmp.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("move download into place: %w", err)
	}
	return nil
}

// Delete implements Service.
func (c *Client) Delete(ctx context.Context, a *models.Artifact) error {
	if a.DownloadURI == "" {
		return fmt.Errorf("artifact %s has no download uri", a)
	}
	resp, err := c.do(ctx, c.http, http.MethodDelete, a.DownloadURI, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// parseTime parses the ISO 8601 variants the service emits.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
