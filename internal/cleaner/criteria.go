// Package cleaner runs the archive and clean batch operations: it walks the
// discovered artifacts of a range, decides what happens to each one, acts on
// that decision and tallies the results.
package cleaner

import (
	"errors"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

// ErrNoCutoff is returned when criteria carry no cutoff date at all.
var ErrNoCutoff = errors.New("at least one end date must be provided (created-before, modified-before, downloaded-before or last-used-before)")

// Criteria are the age cutoffs an artifact must meet to be acted on. Every
// cutoff that is set must be met.
type Criteria struct {
	CreatedBefore    *time.Time
	ModifiedBefore   *time.Time
	DownloadedBefore *time.Time
	// LastUsedBefore requires created, last modified and last downloaded to
	// all be earlier than the cutoff.
	LastUsedBefore *time.Time
}

func (c Criteria) cutoffs() []*time.Time {
	return []*time.Time{c.CreatedBefore, c.ModifiedBefore, c.DownloadedBefore, c.LastUsedBefore}
}

// SearchEnd returns the earliest cutoff. Nothing newer can match, so it
// ends the search range.
func (c Criteria) SearchEnd() (time.Time, error) {
	var end time.Time
	for _, t := range c.cutoffs() {
		if t != nil && (end.IsZero() || t.Before(end)) {
			end = *t
		}
	}
	if end.IsZero() {
		return end, ErrNoCutoff
	}
	return end, nil
}

// Matches reports whether a meets every cutoff. A missing last modified
// date counts as the created date; a missing last downloaded date means
// the artifact was never downloaded and meets that cutoff.
func (c Criteria) Matches(a *models.Artifact) bool {
	if c.CreatedBefore != nil && !a.Created.Before(*c.CreatedBefore) {
		return false
	}
	if c.ModifiedBefore != nil {
		modified := a.Created
		if a.LastModified != nil {
			modified = *a.LastModified
		}
		if !modified.Before(*c.ModifiedBefore) {
			return false
		}
	}
	if c.DownloadedBefore != nil && a.LastDownloaded != nil && !a.LastDownloaded.Before(*c.DownloadedBefore) {
		return false
	}
	if c.LastUsedBefore != nil && !a.LatestActivity().Before(*c.LastUsedBefore) {
		return false
	}
	return true
}

// Describe lists the cutoffs that are set, for the audit ledger.
func (c Criteria) Describe() []string {
	names := []string{"created_before", "modified_before", "downloaded_before", "last_used_before"}
	var out []string
	for i, t := range c.cutoffs() {
		if t != nil {
			out = append(out, names[i]+"="+t.UTC().Format(time.RFC3339))
		}
	}
	return out
}
