// Package models defines the core domain types for the artifactory cleaner.
package models

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// RepoClass is the Artifactory classification of a repository.
type RepoClass string

const (
	RepoClassLocal   RepoClass = "local"
	RepoClassRemote  RepoClass = "remote"
	RepoClassVirtual RepoClass = "virtual"
)

// Repository describes one repository on the remote service.
type Repository struct {
	Key          string    `json:"key" yaml:"key"`
	PackageType  string    `json:"package_type" yaml:"package_type"`
	Class        RepoClass `json:"class" yaml:"class"`
	URL          string    `json:"url,omitempty" yaml:"url,omitempty"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Repositories []string  `json:"repositories,omitempty" yaml:"repositories,omitempty"`
}

// SearchHit is one raw result of a date-ranged usage search.
type SearchHit struct {
	URI            string     `json:"uri"`
	LastDownloaded *time.Time `json:"last_downloaded,omitempty"`
}

// Checksums holds the digests the remote service reports for an artifact.
type Checksums struct {
	SHA1   string `json:"sha1,omitempty" yaml:"sha1,omitempty"`
	MD5    string `json:"md5,omitempty" yaml:"md5,omitempty"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// Artifact is the resolved metadata of one stored build artifact.
//
// An Artifact is owned by exactly one goroutine at a time: the worker that
// resolved it until it is handed over the results channel, then the consumer.
type Artifact struct {
	URI            string     `json:"uri" yaml:"uri"`
	Repo           string     `json:"repo" yaml:"repo"`
	Path           string     `json:"path" yaml:"path"`
	Size           int64      `json:"size" yaml:"size"`
	Created        time.Time  `json:"created" yaml:"created"`
	LastModified   *time.Time `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	LastUpdated    *time.Time `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	LastDownloaded *time.Time `json:"last_downloaded,omitempty" yaml:"last_downloaded,omitempty"`
	DownloadURI    string     `json:"download_uri" yaml:"download_uri"`
	MimeType       string     `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Checksums      Checksums  `json:"checksums" yaml:"checksums"`
}

// activityTimes returns the present timestamps among created, last modified
// and last downloaded.
func (a *Artifact) activityTimes() []time.Time {
	times := []time.Time{a.Created}
	if a.LastModified != nil {
		times = append(times, *a.LastModified)
	}
	if a.LastDownloaded != nil {
		times = append(times, *a.LastDownloaded)
	}
	return times
}

// EarliestActivity returns the earliest of the artifact's activity timestamps.
func (a *Artifact) EarliestActivity() time.Time {
	times := a.activityTimes()
	earliest := times[0]
	for _, t := range times[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// LatestActivity returns the most recent of the artifact's activity
// timestamps. Age bucketing is based on this value.
func (a *Artifact) LatestActivity() time.Time {
	times := a.activityTimes()
	latest := times[0]
	for _, t := range times[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

// AttachLastDownloaded records a last-downloaded time learned after the
// artifact was resolved. A nil time is ignored.
func (a *Artifact) AttachLastDownloaded(t *time.Time) {
	if t == nil || t.IsZero() {
		return
	}
	ts := *t
	a.LastDownloaded = &ts
}

// RelativePath returns the artifact's path inside its repository, without a
// leading slash. It prefers the reported Path and falls back to the part of
// the download URI that follows the repository key.
func (a *Artifact) RelativePath() string {
	if p := strings.TrimPrefix(path.Clean("/"+a.Path), "/"); a.Path != "" && p != "" {
		return p
	}
	u, err := url.Parse(a.DownloadURI)
	if err != nil {
		return ""
	}
	marker := "/" + a.Repo + "/"
	idx := strings.Index(u.Path, marker)
	if a.Repo == "" || idx < 0 {
		return strings.TrimPrefix(u.Path, "/")
	}
	return u.Path[idx+len(marker):]
}

// Name returns the file name of the artifact.
func (a *Artifact) Name() string {
	rel := a.RelativePath()
	if rel == "" {
		return ""
	}
	return path.Base(rel)
}

// String implements fmt.Stringer.
func (a *Artifact) String() string {
	if a.Repo == "" {
		return a.URI
	}
	return a.Repo + "/" + a.RelativePath()
}

// Disposition is the outcome the cleaner reached for one artifact.
type Disposition string

const (
	DispositionArchived Disposition = "archived"
	DispositionDeleted  Disposition = "deleted"
	DispositionSkipped  Disposition = "skipped"
	DispositionFailed   Disposition = "failed"
)

// Run represents one archive or clean invocation recorded in the ledger.
type Run struct {
	ID        string     `json:"id"`
	Command   string     `json:"command"`
	DryRun    bool       `json:"dry_run"`
	From      time.Time  `json:"from"`
	To        time.Time  `json:"to"`
	Summary   string     `json:"summary,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Decision is an audit record of what happened to one artifact in a run.
type Decision struct {
	ID          string      `json:"id"`
	RunID       string      `json:"run_id"`
	Disposition Disposition `json:"disposition"`
	URI         string      `json:"uri"`
	Repo        string      `json:"repo"`
	Size        int64       `json:"size"`
	InputsHash  string      `json:"inputs_hash"`
	Details     string      `json:"details,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
