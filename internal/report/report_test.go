package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/bucket"
	"github.com/fentz26/artifactory-cleaner/internal/clock"
	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testCollection(t *testing.T) *bucket.Collection {
	t.Helper()
	fc := clock.Fake(now)
	col, err := bucket.NewCollection([]bucket.Limit{bucket.Days(30), bucket.Unbounded()}, bucket.WithClock(fc))
	require.NoError(t, err)

	for _, a := range []*models.Artifact{
		{URI: "u1", Repo: "libs", Size: 1024, Created: now.AddDate(0, 0, -5)},
		{URI: "u2", Repo: "libs", Size: 2048, Created: now.AddDate(0, 0, -400), Checksums: models.Checksums{SHA1: "abc"}},
	} {
		require.NoError(t, col.Add(a))
	}
	return col
}

func TestBucketLines(t *testing.T) {
	lines := BucketLines(testCollection(t))
	assert.Equal(t, []string{
		"1 artifacts between 0 and 30 days, totaling 1.0 KiB",
		"1 artifacts between 30 and ∞ days, totaling 2.0 KiB",
		"Total: 3.0 KiB across 2 artifacts",
	}, lines)
}

func TestWriteBucketDetails(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBucketDetails(&buf, testCollection(t)))
	assert.True(t, strings.HasPrefix(buf.String(), "# Detailed Bucket Report:\n"))

	var doc struct {
		Buckets []struct {
			Min       int  `yaml:"min"`
			Max       *int `yaml:"max"`
			Artifacts []struct {
				URI       string            `yaml:"uri"`
				Size      int64             `yaml:"size"`
				Checksums map[string]string `yaml:"checksums"`
			} `yaml:"artifacts"`
		} `yaml:"buckets"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Buckets, 2)
	require.NotNil(t, doc.Buckets[0].Max)
	assert.Equal(t, 30, *doc.Buckets[0].Max)
	assert.Nil(t, doc.Buckets[1].Max)
	require.Len(t, doc.Buckets[1].Artifacts, 1)
	assert.Equal(t, "u2", doc.Buckets[1].Artifacts[0].URI)
	assert.Equal(t, "abc", doc.Buckets[1].Artifacts[0].Checksums["sha1"])
}

func TestWriteTallies(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTallies(&buf, []Tally{
		{Label: "deleted", Count: 2, Bytes: 3 << 20},
		{Label: "skipped", Count: 0},
	}))
	assert.Equal(t, "deleted 2 artifacts totaling 3.0 MiB\nskipped 0 artifacts totaling 0 B\n", buf.String())
}

var repos = []models.Repository{
	{Key: "libs-release", PackageType: "maven", Class: models.RepoClassLocal, Description: "releases"},
	{Key: "jcenter", PackageType: "maven", Class: models.RepoClassRemote, URL: "https://jcenter.bintray.com"},
}

func TestRepoTableKeysOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRepoTable(&buf, repos, RepoTableOptions{}))
	assert.Equal(t, "libs-release\njcenter\n", buf.String())
}

func TestRepoTableDetails(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRepoTable(&buf, repos, RepoTableOptions{
		Details: true,
		Classes: []models.RepoClass{models.RepoClassLocal},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Class")
	assert.NotContains(t, lines[0], "URL", "url is only shown when remotes are listed")
	assert.Contains(t, lines[2], "libs-release")
}

func TestRepoTableNoHeaders(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRepoTable(&buf, repos[1:], RepoTableOptions{
		Details:   true,
		NoHeaders: true,
		Columns:   []string{"key", "url"},
		Classes:   []models.RepoClass{models.RepoClassRemote},
	})
	require.NoError(t, err)
	assert.Equal(t, "jcenter\thttps://jcenter.bintray.com\n", buf.String())
}

func TestRepoTableUnknownColumn(t *testing.T) {
	err := WriteRepoTable(&bytes.Buffer{}, repos, RepoTableOptions{Details: true, Columns: []string{"colour"}})
	assert.Error(t, err)
}

func TestWriteRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRuns(&buf, nil))
	assert.Equal(t, "No runs recorded\n", buf.String())

	ended := now
	buf.Reset()
	require.NoError(t, WriteRuns(&buf, []models.Run{
		{ID: "r1", Command: "clean", From: now.AddDate(-1, 0, 0), To: now, StartedAt: now, EndedAt: &ended, Summary: "deleted 1"},
		{ID: "r2", Command: "archive", DryRun: true, From: now, To: now, StartedAt: now},
	}))
	out := buf.String()
	assert.Contains(t, out, "deleted 1")
	assert.Contains(t, out, "(unfinished)")
	assert.Contains(t, out, "2023-06-01 .. 2024-06-01")
}

func TestWriteRunDetail(t *testing.T) {
	run := &models.Run{ID: "r1", Command: "clean", From: now, To: now, StartedAt: now}
	var buf bytes.Buffer
	require.NoError(t, WriteRunDetail(&buf, run, []models.Decision{
		{Disposition: models.DispositionFailed, URI: "u1", Repo: "libs", Size: 10, Details: "checksum\nmismatch"},
	}))
	out := buf.String()
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "libs: u1")
	assert.Contains(t, out, "checksum mismatch")
}
