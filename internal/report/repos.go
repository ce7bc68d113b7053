package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

// RepoColumn is one selectable column of the repository table.
type RepoColumn struct {
	Name    string
	Heading string
	// Only limits the column to listings that include this class.
	Only  models.RepoClass
	value func(r models.Repository) string
}

// RepoColumns are the available repository table columns.
var RepoColumns = []RepoColumn{
	{Name: "key", Heading: "ID", value: func(r models.Repository) string { return r.Key }},
	{Name: "package_type", Heading: "Type", value: func(r models.Repository) string { return r.PackageType }},
	{Name: "class", Heading: "Class", Only: models.RepoClassLocal, value: func(r models.Repository) string { return string(r.Class) }},
	{Name: "url", Heading: "URL", Only: models.RepoClassRemote, value: func(r models.Repository) string { return r.URL }},
	{Name: "description", Heading: "Description", value: func(r models.Repository) string { return r.Description }},
	{Name: "repositories", Heading: "Included Repos", value: func(r models.Repository) string { return strings.Join(r.Repositories, ",") }},
}

// DefaultRepoColumns are shown with --details when no columns are chosen.
var DefaultRepoColumns = []string{"key", "package_type", "class", "url", "description"}

// RepoTableOptions controls WriteRepoTable.
type RepoTableOptions struct {
	// Details shows the selected columns instead of keys only.
	Details bool
	// Columns selects columns by name; empty means DefaultRepoColumns.
	Columns []string
	// NoHeaders writes tab-separated rows for scripts.
	NoHeaders bool
	// Classes are the repository classes being listed.
	Classes []models.RepoClass
}

// SelectRepoColumns resolves the columns to show. Unknown names are an
// error.
func SelectRepoColumns(opts RepoTableOptions) ([]RepoColumn, error) {
	if !opts.Details {
		return RepoColumns[:1], nil
	}
	names := opts.Columns
	if len(names) == 0 {
		names = DefaultRepoColumns
	}
	for _, n := range names {
		if !slices.ContainsFunc(RepoColumns, func(c RepoColumn) bool { return c.Name == n }) {
			return nil, fmt.Errorf("unknown column %q", n)
		}
	}

	var cols []RepoColumn
	for _, c := range RepoColumns {
		if c.Only != "" && !slices.Contains(opts.Classes, c.Only) {
			continue
		}
		if slices.Contains(names, c.Name) {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// WriteRepoTable writes repositories as a table.
func WriteRepoTable(w io.Writer, repos []models.Repository, opts RepoTableOptions) error {
	cols, err := SelectRepoColumns(opts)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(repos))
	for _, r := range repos {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.value(r)
		}
		rows = append(rows, row)
	}

	if opts.NoHeaders || !opts.Details {
		for _, row := range rows {
			if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headings := make([]string, len(cols))
	rule := make([]string, len(cols))
	for i, c := range cols {
		headings[i] = c.Heading
		rule[i] = strings.Repeat("-", len(c.Heading))
	}
	fmt.Fprintln(tw, strings.Join(headings, "\t"))
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
