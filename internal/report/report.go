// Package report renders discovery and run results for a terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fentz26/artifactory-cleaner/internal/bucket"
	"github.com/fentz26/artifactory-cleaner/internal/models"
	"gopkg.in/yaml.v3"
)

var headingStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("99"))

// Heading renders a section title.
func Heading(title string) string {
	return headingStyle.Render(title)
}

// Size formats a byte count for humans.
func Size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// BucketLines returns one line per bucket followed by a total line.
func BucketLines(col *bucket.Collection) []string {
	lines := make([]string, 0, col.Len()+1)
	for _, b := range col.Buckets() {
		lines = append(lines, fmt.Sprintf("%d artifacts between %d and %s days, totaling %s",
			b.Len(), b.Min(), b.Max(), Size(b.TotalSize())))
	}
	lines = append(lines, fmt.Sprintf("Total: %s across %d artifacts", Size(col.TotalSize()), col.ArtifactCount()))
	return lines
}

// WriteBucketSummary writes BucketLines to w.
func WriteBucketSummary(w io.Writer, col *bucket.Collection) error {
	for _, line := range BucketLines(col) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// ArtifactYAML is the exported view of an artifact in a detailed report.
type ArtifactYAML struct {
	URI            string           `yaml:"uri"`
	LastDownloaded *time.Time       `yaml:"last_downloaded"`
	Repo           string           `yaml:"repo"`
	Created        time.Time        `yaml:"created"`
	LastModified   *time.Time       `yaml:"last_modified"`
	LastUpdated    *time.Time       `yaml:"last_updated"`
	DownloadURI    string           `yaml:"download_uri"`
	MimeType       string           `yaml:"mime_type"`
	Size           int64            `yaml:"size"`
	Checksums      models.Checksums `yaml:"checksums"`
}

// NewArtifactYAML converts an artifact for the detailed report.
func NewArtifactYAML(a *models.Artifact) ArtifactYAML {
	return ArtifactYAML{
		URI:            a.URI,
		LastDownloaded: a.LastDownloaded,
		Repo:           a.Repo,
		Created:        a.Created,
		LastModified:   a.LastModified,
		LastUpdated:    a.LastUpdated,
		DownloadURI:    a.DownloadURI,
		MimeType:       a.MimeType,
		Size:           a.Size,
		Checksums:      a.Checksums,
	}
}

type bucketYAML struct {
	Min       int            `yaml:"min"`
	Max       bucket.Limit   `yaml:"max"`
	Artifacts []ArtifactYAML `yaml:"artifacts"`
}

type detailsYAML struct {
	Buckets []bucketYAML `yaml:"buckets"`
}

// WriteBucketDetails writes every bucket and its artifacts as a YAML
// document. An unbounded max is written as null.
func WriteBucketDetails(w io.Writer, col *bucket.Collection) error {
	doc := detailsYAML{Buckets: make([]bucketYAML, 0, col.Len())}
	for _, b := range col.Buckets() {
		by := bucketYAML{Min: b.Min(), Max: b.Max(), Artifacts: make([]ArtifactYAML, 0, b.Len())}
		for _, a := range b.Artifacts() {
			by.Artifacts = append(by.Artifacts, NewArtifactYAML(a))
		}
		doc.Buckets = append(doc.Buckets, by)
	}

	if _, err := fmt.Fprintln(w, "# Detailed Bucket Report:"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode bucket report: %w", err)
	}
	return enc.Close()
}

// Tally is the number and size of artifacts that reached one outcome.
type Tally struct {
	Label string
	Count int
	Bytes int64
}

// WriteTallies writes one "<label> <n> artifacts totaling <size>" line per
// tally.
func WriteTallies(w io.Writer, tallies []Tally) error {
	for _, t := range tallies {
		if _, err := fmt.Fprintf(w, "%s %d artifacts totaling %s\n", t.Label, t.Count, Size(t.Bytes)); err != nil {
			return err
		}
	}
	return nil
}

// WriteRuns lists ledger runs, most recent first.
func WriteRuns(w io.Writer, runs []models.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMMAND\tDRY RUN\tRANGE\tSTARTED\tSUMMARY")
	for _, r := range runs {
		summary := r.Summary
		if r.EndedAt == nil {
			summary = "(unfinished)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s .. %s\t%s\t%s\n",
			r.ID, r.Command, r.DryRun,
			r.From.Format(time.DateOnly), r.To.Format(time.DateOnly),
			r.StartedAt.Local().Format(time.DateTime), summary)
	}
	return tw.Flush()
}

// WriteRunDetail writes one run with its decisions.
func WriteRunDetail(w io.Writer, run *models.Run, decisions []models.Decision) error {
	fmt.Fprintln(w, Heading("Run "+run.ID))
	fmt.Fprintf(w, "Command:  %s\n", run.Command)
	fmt.Fprintf(w, "Dry run:  %t\n", run.DryRun)
	fmt.Fprintf(w, "Range:    %s .. %s\n", run.From.Format(time.RFC3339), run.To.Format(time.RFC3339))
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.EndedAt != nil {
		fmt.Fprintf(w, "Ended:    %s\n", run.EndedAt.Local().Format(time.DateTime))
	}
	if run.Summary != "" {
		fmt.Fprintf(w, "Summary:  %s\n", run.Summary)
	}
	if len(decisions) == 0 {
		_, err := fmt.Fprintln(w, "\nNo decisions recorded")
		return err
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DISPOSITION\tSIZE\tARTIFACT\tDETAILS")
	for _, d := range decisions {
		name := d.URI
		if d.Repo != "" {
			name = d.Repo + ": " + d.URI
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Disposition, Size(d.Size), name, strings.ReplaceAll(d.Details, "\n", " "))
	}
	return tw.Flush()
}
