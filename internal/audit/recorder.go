// Package audit records every decision a batch run makes about an artifact
// in the ledger.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/fentz26/artifactory-cleaner/internal/store"
)

// Recorder writes decision records for one run.
type Recorder struct {
	store *store.Store
	runID string
}

// NewRecorder creates a recorder for the run.
func NewRecorder(s *store.Store, runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// RunID returns the run decisions are recorded under.
func (r *Recorder) RunID() string { return r.runID }

// decisionInputs is what a decision was based on. Its hash lets two runs be
// compared: identical hashes mean the artifact looked the same to both.
type decisionInputs struct {
	URI            string   `json:"uri"`
	Size           int64    `json:"size"`
	Created        string   `json:"created"`
	LastModified   string   `json:"last_modified,omitempty"`
	LastDownloaded string   `json:"last_downloaded,omitempty"`
	SHA1           string   `json:"sha1,omitempty"`
	Criteria       []string `json:"criteria,omitempty"`
}

// Record writes one decision. criteria describes the rules that applied.
func (r *Recorder) Record(a *models.Artifact, disposition models.Disposition, criteria []string, details string) (*models.Decision, error) {
	in := decisionInputs{
		URI:      a.URI,
		Size:     a.Size,
		Created:  a.Created.UTC().Format(time.RFC3339),
		SHA1:     a.Checksums.SHA1,
		Criteria: criteria,
	}
	if a.LastModified != nil {
		in.LastModified = a.LastModified.UTC().Format(time.RFC3339)
	}
	if a.LastDownloaded != nil {
		in.LastDownloaded = a.LastDownloaded.UTC().Format(time.RFC3339)
	}
	return r.store.WriteDecision(r.runID, disposition, a.URI, a.Repo, a.Size, hashInputs(in), details)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
