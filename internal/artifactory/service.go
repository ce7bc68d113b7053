// Package artifactory defines the capability the cleaner needs from the
// remote repository service and an HTTP implementation of it.
package artifactory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

// Service is everything the discovery engine needs from the remote side.
type Service interface {
	// ListRepositories returns every repository visible to the caller.
	ListRepositories(ctx context.Context) ([]models.Repository, error)

	// SearchDates returns the artifacts created, modified or downloaded
	// between from and to, optionally restricted to repos.
	SearchDates(ctx context.Context, from, to time.Time, repos []string) ([]models.SearchHit, error)

	// FetchArtifact resolves a search hit URI into full artifact metadata.
	FetchArtifact(ctx context.Context, uri string) (*models.Artifact, error)

	// Download writes the artifact's bytes to destPath.
	Download(ctx context.Context, a *models.Artifact, destPath string) error

	// Delete removes the artifact from the remote service.
	Delete(ctx context.Context, a *models.Artifact) error
}

// ErrNotFound is matched by errors for requests the service answered with 404.
var ErrNotFound = errors.New("not found")

// HTTPError is a failing HTTP response from the service.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: HTTP %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Is makes a 404 HTTPError match ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// ConnectionError is a failure to reach the service at all: refused or reset
// connections, DNS failures and timeouts.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the remote resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is a connectivity failure worth retrying
// after a delay.
func IsTransient(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
