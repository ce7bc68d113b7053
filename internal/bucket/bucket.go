// Package bucket groups artifacts into age ranges so an operator can see how
// much storage is held by artifacts of a given staleness.
//
// Buckets and collections are not safe for concurrent use. They are filled by
// the single goroutine that drains discovery results.
package bucket

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

// ErrNilArtifact is returned when a nil artifact is inserted into a bucket.
var ErrNilArtifact = errors.New("bucket: artifact is nil")

// Limit is the exclusive upper age bound of a bucket, in days. The zero
// value is unbounded.
type Limit struct {
	days    int
	bounded bool
}

// Days returns a bounded limit of n days.
func Days(n int) Limit { return Limit{days: n, bounded: true} }

// Unbounded returns the limit of the terminal bucket.
func Unbounded() Limit { return Limit{} }

// IsUnbounded reports whether the limit has no upper bound.
func (l Limit) IsUnbounded() bool { return !l.bounded }

// Days returns the bound in days and whether the limit is bounded at all.
func (l Limit) Days() (int, bool) { return l.days, l.bounded }

// Above reports whether age is strictly below the limit.
func (l Limit) Above(age float64) bool {
	return !l.bounded || age < float64(l.days)
}

// String returns the number of days, or "∞" when unbounded.
func (l Limit) String() string {
	if !l.bounded {
		return "∞"
	}
	return strconv.Itoa(l.days)
}

// MarshalYAML renders an unbounded limit as null.
func (l Limit) MarshalYAML() (interface{}, error) {
	if !l.bounded {
		return nil, nil
	}
	return l.days, nil
}

// Bucket holds the artifacts whose age falls in [Min, Max) days, and the
// total size of those artifacts.
//
// The total is updated by Push, Unshift and Set. Remove and Shift leave it
// untouched; call RecalculateTotal afterwards to bring it back in line.
type Bucket struct {
	min       int
	max       Limit
	artifacts []*models.Artifact
	totalSize int64
}

// New creates an empty bucket covering [min, max).
func New(min int, max Limit) *Bucket {
	return &Bucket{min: min, max: max}
}

// Min returns the inclusive lower bound in days.
func (b *Bucket) Min() int { return b.min }

// Max returns the exclusive upper bound.
func (b *Bucket) Max() Limit { return b.max }

// Covers reports whether an artifact of the given age in days belongs here.
func (b *Bucket) Covers(age float64) bool {
	return age >= float64(b.min) && b.max.Above(age)
}

// Push appends an artifact and adds its size to the total.
func (b *Bucket) Push(a *models.Artifact) error {
	if a == nil {
		return ErrNilArtifact
	}
	b.artifacts = append(b.artifacts, a)
	b.totalSize += a.Size
	return nil
}

// Unshift prepends an artifact and adds its size to the total.
func (b *Bucket) Unshift(a *models.Artifact) error {
	if a == nil {
		return ErrNilArtifact
	}
	b.artifacts = append([]*models.Artifact{a}, b.artifacts...)
	b.totalSize += a.Size
	return nil
}

// Set replaces the artifact at index i, swapping its size in the total.
func (b *Bucket) Set(i int, a *models.Artifact) error {
	if a == nil {
		return ErrNilArtifact
	}
	if i < 0 || i >= len(b.artifacts) {
		return fmt.Errorf("bucket: index %d out of range [0,%d)", i, len(b.artifacts))
	}
	b.totalSize -= b.artifacts[i].Size
	b.totalSize += a.Size
	b.artifacts[i] = a
	return nil
}

// Remove deletes the artifact at index i and returns it. The total size is
// not adjusted.
func (b *Bucket) Remove(i int) (*models.Artifact, bool) {
	if i < 0 || i >= len(b.artifacts) {
		return nil, false
	}
	a := b.artifacts[i]
	b.artifacts = append(b.artifacts[:i], b.artifacts[i+1:]...)
	return a, true
}

// Shift removes and returns the first artifact. The total size is not
// adjusted.
func (b *Bucket) Shift() (*models.Artifact, bool) {
	return b.Remove(0)
}

// Clear empties the bucket and resets the total.
func (b *Bucket) Clear() {
	b.artifacts = nil
	b.totalSize = 0
}

// At returns the artifact at index i.
func (b *Bucket) At(i int) *models.Artifact {
	if i < 0 || i >= len(b.artifacts) {
		return nil
	}
	return b.artifacts[i]
}

// Artifacts returns the bucket contents in insertion order.
func (b *Bucket) Artifacts() []*models.Artifact {
	out := make([]*models.Artifact, len(b.artifacts))
	copy(out, b.artifacts)
	return out
}

// Len returns the number of artifacts in the bucket.
func (b *Bucket) Len() int { return len(b.artifacts) }

// Empty reports whether the bucket has no artifacts.
func (b *Bucket) Empty() bool { return len(b.artifacts) == 0 }

// TotalSize returns the tracked total size in bytes.
func (b *Bucket) TotalSize() int64 { return b.totalSize }

// RecalculateTotal recomputes the total size from the contained artifacts,
// stores it and returns it.
func (b *Bucket) RecalculateTotal() int64 {
	var total int64
	for _, a := range b.artifacts {
		total += a.Size
	}
	b.totalSize = total
	return total
}

// String implements fmt.Stringer.
func (b *Bucket) String() string {
	return fmt.Sprintf("[%d, %s) days: %d artifacts", b.min, b.max, len(b.artifacts))
}
