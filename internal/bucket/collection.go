package bucket

import (
	"fmt"
	"math"

	"github.com/fentz26/artifactory-cleaner/internal/clock"
	"github.com/fentz26/artifactory-cleaner/internal/models"
)

const secondsPerDay = 24 * 60 * 60

// DefaultBoundaries are the age limits used when none are configured.
func DefaultBoundaries() []Limit {
	return []Limit{
		Days(30), Days(60), Days(90), Days(180), Days(365), Days(730), Days(1095), Unbounded(),
	}
}

// RangeError is returned by Collection.Add when no bucket covers an
// artifact's age, which means the boundaries do not reach far enough.
type RangeError struct {
	Age      float64
	Artifact string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("no bucket available for an artifact of age %d days (%s)", int(math.Floor(e.Age)), e.Artifact)
}

// Option configures a Collection.
type Option func(*Collection)

// WithClock sets the clock used to compute artifact ages.
func WithClock(c clock.Clock) Option {
	return func(col *Collection) { col.clock = c }
}

// Collection is an ordered list of contiguous buckets. When built from a
// non-decreasing list of boundaries every non-negative age is covered by
// exactly one bucket.
type Collection struct {
	buckets []*Bucket
	clock   clock.Clock
}

// NewCollection builds a collection from boundaries, or from
// DefaultBoundaries when none are given.
func NewCollection(boundaries []Limit, opts ...Option) (*Collection, error) {
	c := &Collection{clock: clock.Real()}
	for _, opt := range opts {
		opt(c)
	}
	if len(boundaries) == 0 {
		boundaries = DefaultBoundaries()
	}
	if err := c.DefineBuckets(boundaries); err != nil {
		return nil, err
	}
	return c, nil
}

// DefineBuckets appends one bucket per boundary. Each bucket starts where the
// previous one ended (the first at 0) and ends at its boundary. Only the last
// boundary may be unbounded.
//
// DefineBuckets is meant to be called once on an empty collection. Calling it
// again appends further buckets starting from 0, which produces overlapping
// ranges, and artifacts already added are not redistributed.
func (c *Collection) DefineBuckets(boundaries []Limit) error {
	last := 0
	for i, limit := range boundaries {
		days, bounded := limit.Days()
		if !bounded && i != len(boundaries)-1 {
			return fmt.Errorf("define buckets: unbounded limit must be last (position %d of %d)", i+1, len(boundaries))
		}
		if bounded && days < last {
			return fmt.Errorf("define buckets: boundaries must not decrease (%d after %d)", days, last)
		}
		c.buckets = append(c.buckets, New(last, limit))
		last = days
	}
	return nil
}

// AgeOf returns the age of an artifact in days, measured from its latest
// activity.
func (c *Collection) AgeOf(a *models.Artifact) float64 {
	return c.clock.Now().Sub(a.LatestActivity()).Seconds() / secondsPerDay
}

// Add routes an artifact into the bucket that covers its age.
func (c *Collection) Add(a *models.Artifact) error {
	if a == nil {
		return ErrNilArtifact
	}
	age := c.AgeOf(a)
	b := c.Bucket(age)
	if b == nil {
		return &RangeError{Age: age, Artifact: a.String()}
	}
	return b.Push(a)
}

// Bucket returns the bucket covering age, or nil.
func (c *Collection) Bucket(age float64) *Bucket {
	for _, b := range c.buckets {
		if b.Covers(age) {
			return b
		}
	}
	return nil
}

// Buckets returns the buckets in ascending age order.
func (c *Collection) Buckets() []*Bucket {
	out := make([]*Bucket, len(c.buckets))
	copy(out, c.buckets)
	return out
}

// Len returns the number of buckets.
func (c *Collection) Len() int { return len(c.buckets) }

// BucketSizes returns each bucket's upper limit.
func (c *Collection) BucketSizes() []Limit {
	out := make([]Limit, len(c.buckets))
	for i, b := range c.buckets {
		out[i] = b.Max()
	}
	return out
}

// ArtifactCount returns the number of artifacts across all buckets.
func (c *Collection) ArtifactCount() int {
	n := 0
	for _, b := range c.buckets {
		n += b.Len()
	}
	return n
}

// TotalSize returns the tracked size across all buckets.
func (c *Collection) TotalSize() int64 {
	var total int64
	for _, b := range c.buckets {
		total += b.TotalSize()
	}
	return total
}

// Clear empties every bucket.
func (c *Collection) Clear() {
	for _, b := range c.buckets {
		b.Clear()
	}
}
