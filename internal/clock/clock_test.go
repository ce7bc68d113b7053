package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAfterAdvancesAndRecords(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	fired := <-c.After(10 * time.Second)
	assert.Equal(t, start.Add(10*time.Second), fired)
	assert.Equal(t, start.Add(10*time.Second), c.Now())

	<-c.After(0)
	assert.Equal(t, []time.Duration{10 * time.Second, 0}, c.Waits())
}

func TestFakeSetAndAdvance(t *testing.T) {
	c := Fake(time.Time{})
	at := time.Date(2023, 5, 5, 5, 5, 5, 0, time.UTC)
	c.Set(at)
	c.Advance(time.Hour)
	assert.Equal(t, at.Add(time.Hour), c.Now())
}

func TestRealNow(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	assert.False(t, got.Before(before))
}
