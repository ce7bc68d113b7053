// Package filter decides, for each discovered artifact, whether it is
// included in or excluded from a clean-up run.
//
// A filter is an Engine holding Rules. Rules are consulted in ascending
// priority order (lower numbers first) and the first rule whose pattern
// matches decides the action. Rules that share a priority are consulted in an
// unspecified order.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

var (
	// ErrInvalidAction is returned for an action other than include or exclude.
	ErrInvalidAction = errors.New("invalid filter action")
	// ErrInvalidField is returned for an unknown field selector.
	ErrInvalidField = errors.New("invalid filter field")
	// ErrNilRule is returned when a nil rule is added to an engine.
	ErrNilRule = errors.New("filter rule is nil")
)

// Action is what a filter decides for an artifact.
type Action string

const (
	// NoOpinion is returned by a rule that does not match.
	NoOpinion Action = ""
	Include   Action = "include"
	Exclude   Action = "exclude"
)

// ParseAction parses "include" or "exclude".
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case Include:
		return Include, nil
	case Exclude:
		return Exclude, nil
	}
	return NoOpinion, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Field selects which artifact attribute a rule matches against.
type Field int

const (
	FieldURI Field = iota
	FieldRepo
	FieldPath
	FieldName
	FieldDownloadURI
	FieldMimeType
	FieldSize
	FieldCreated
	FieldLastModified
	FieldLastDownloaded
	FieldSHA1
	FieldSHA256
	FieldMD5
)

var fieldNames = map[Field]string{
	FieldURI:            "uri",
	FieldRepo:           "repo",
	FieldPath:           "path",
	FieldName:           "name",
	FieldDownloadURI:    "download_uri",
	FieldMimeType:       "mime_type",
	FieldSize:           "size",
	FieldCreated:        "created",
	FieldLastModified:   "last_modified",
	FieldLastDownloaded: "last_downloaded",
	FieldSHA1:           "sha1",
	FieldSHA256:         "sha256",
	FieldMD5:            "md5",
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var fieldAccessors = map[Field]func(*models.Artifact) string{
	FieldURI:            func(a *models.Artifact) string { return a.URI },
	FieldRepo:           func(a *models.Artifact) string { return a.Repo },
	FieldPath:           func(a *models.Artifact) string { return a.RelativePath() },
	FieldName:           func(a *models.Artifact) string { return a.Name() },
	FieldDownloadURI:    func(a *models.Artifact) string { return a.DownloadURI },
	FieldMimeType:       func(a *models.Artifact) string { return a.MimeType },
	FieldSize:           func(a *models.Artifact) string { return strconv.FormatInt(a.Size, 10) },
	FieldCreated:        func(a *models.Artifact) string { return formatTime(&a.Created) },
	FieldLastModified:   func(a *models.Artifact) string { return formatTime(a.LastModified) },
	FieldLastDownloaded: func(a *models.Artifact) string { return formatTime(a.LastDownloaded) },
	FieldSHA1:           func(a *models.Artifact) string { return a.Checksums.SHA1 },
	FieldSHA256:         func(a *models.Artifact) string { return a.Checksums.SHA256 },
	FieldMD5:            func(a *models.Artifact) string { return a.Checksums.MD5 },
}

// ParseField resolves a field name. Hyphens and camelCase spellings of the
// names are accepted ("download-uri", "lastDownloaded").
func ParseField(s string) (Field, error) {
	key := normalizeFieldName(s)
	for f, name := range fieldNames {
		if name == key {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidField, s)
}

func normalizeFieldName(s string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r == '-':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// String returns the canonical field name.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "field(" + strconv.Itoa(int(f)) + ")"
}

// Value returns the string form of the field for an artifact, or "" for an
// unknown field.
func (f Field) Value(a *models.Artifact) string {
	if fn, ok := fieldAccessors[f]; ok {
		return fn(a)
	}
	return ""
}

// Rule matches one artifact field against a regular expression and, when it
// matches, yields its action. Action and priority are fixed at construction
// so a rule cannot fall out of order inside an Engine.
type Rule struct {
	action   Action
	priority int
	field    Field
	pattern  *regexp.Regexp
}

// NewRule compiles pattern and validates action and field.
func NewRule(action Action, priority int, field Field, pattern string) (*Rule, error) {
	if action != Include && action != Exclude {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, string(action))
	}
	if _, ok := fieldAccessors[field]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidField, int(field))
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &Rule{action: action, priority: priority, field: field, pattern: re}, nil
}

// MustRule is like NewRule but panics on error. For static rule tables.
func MustRule(action Action, priority int, field Field, pattern string) *Rule {
	r, err := NewRule(action, priority, field, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Rule) Action() Action          { return r.action }
func (r *Rule) Priority() int           { return r.priority }
func (r *Rule) Field() Field            { return r.field }
func (r *Rule) Pattern() *regexp.Regexp { return r.pattern }

// Matches reports whether the rule's pattern matches the selected field.
func (r *Rule) Matches(a *models.Artifact) bool {
	return r.pattern.MatchString(r.field.Value(a))
}

// ActionFor returns the rule's action when it matches, otherwise NoOpinion.
func (r *Rule) ActionFor(a *models.Artifact) Action {
	if r.Matches(a) {
		return r.action
	}
	return NoOpinion
}

// String implements fmt.Stringer.
func (r *Rule) String() string {
	return fmt.Sprintf("%s %s =~ /%s/ (priority %d)", r.action, r.field, r.pattern, r.priority)
}
