package cleaner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/discovery"
	"github.com/fentz26/artifactory-cleaner/internal/filter"
	"github.com/fentz26/artifactory-cleaner/internal/metrics"
	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/fentz26/artifactory-cleaner/internal/report"
	"go.uber.org/zap"
)

// Mode selects the batch operation.
type Mode string

const (
	// ModeArchive downloads matching artifacts and leaves them in place.
	ModeArchive Mode = "archive"
	// ModeClean deletes matching artifacts, archiving them first when an
	// archive directory is set.
	ModeClean Mode = "clean"
)

// Recorder stores one decision per artifact.
type Recorder interface {
	Record(a *models.Artifact, disposition models.Disposition, criteria []string, details string) (*models.Decision, error)
}

// Mirror copies archived files to remote storage.
type Mirror interface {
	Upload(ctx context.Context, a *models.Artifact, localPath string) (string, error)
}

// Plan describes one batch run.
type Plan struct {
	Mode     Mode
	DryRun   bool
	From     time.Time
	Repos    []string
	Criteria Criteria
	// Filter decides which matching artifacts are acted on; nil includes
	// everything.
	Filter *filter.Engine
	// ArchiveTo is the directory archived copies are written under. It is
	// required in ModeArchive.
	ArchiveTo   string
	Concurrency int
}

// Query returns the discovery query for the plan.
func (p Plan) Query() (discovery.Query, error) {
	to, err := p.Criteria.SearchEnd()
	if err != nil {
		return discovery.Query{}, err
	}
	return discovery.Query{From: p.From, To: to, Repos: p.Repos, Concurrency: p.Concurrency}, nil
}

func (p Plan) validate() error {
	switch p.Mode {
	case ModeArchive:
		if p.ArchiveTo == "" {
			return fmt.Errorf("archive requires an archive directory")
		}
	case ModeClean:
	default:
		return fmt.Errorf("unknown mode %q", p.Mode)
	}
	return nil
}

// Failure is an artifact whose archive or delete failed.
type Failure struct {
	Artifact *models.Artifact
	Err      error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Artifact, f.Err) }

func (f Failure) Unwrap() error { return f.Err }

// Report is the outcome of a run.
type Report struct {
	Totals     map[models.Disposition]*report.Tally
	Failures   []Failure
	Unresolved []discovery.ResolveFailure
}

func newReport() *Report {
	r := &Report{Totals: make(map[models.Disposition]*report.Tally)}
	for _, d := range dispositionOrder {
		r.Totals[d] = &report.Tally{Label: string(d)}
	}
	return r
}

var dispositionOrder = []models.Disposition{
	models.DispositionArchived,
	models.DispositionDeleted,
	models.DispositionSkipped,
	models.DispositionFailed,
}

func (r *Report) add(d models.Disposition, size int64) {
	t := r.Totals[d]
	t.Count++
	t.Bytes += size
}

// Tallies returns the totals in a fixed order. Dispositions the mode never
// produces are left out.
func (r *Report) Tallies(mode Mode) []report.Tally {
	var out []report.Tally
	for _, d := range dispositionOrder {
		t := r.Totals[d]
		if d == models.DispositionDeleted && mode != ModeClean {
			continue
		}
		if d == models.DispositionFailed && t.Count == 0 {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// Summary is a one-line description of the totals.
func (r *Report) Summary() string {
	var parts []string
	for _, d := range dispositionOrder {
		if t := r.Totals[d]; t.Count > 0 {
			parts = append(parts, fmt.Sprintf("%s %d (%s)", d, t.Count, report.Size(t.Bytes)))
		}
	}
	if len(r.Unresolved) > 0 {
		parts = append(parts, fmt.Sprintf("unresolved %d", len(r.Unresolved)))
	}
	if len(parts) == 0 {
		return "no artifacts"
	}
	return strings.Join(parts, ", ")
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder records every decision.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithMirror uploads every archived copy.
func WithMirror(m Mirror) Option {
	return func(r *Runner) { r.mirror = m }
}

// WithMetrics counts decisions.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOutput sets where dry-run actions are announced.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// Runner executes batch plans against a discovery controller.
type Runner struct {
	ctrl     *discovery.Controller
	recorder Recorder
	mirror   Mirror
	metrics  *metrics.Collector
	logger   *zap.Logger
	out      io.Writer
}

// NewRunner creates a runner.
func NewRunner(ctrl *discovery.Controller, opts ...Option) *Runner {
	r := &Runner{
		ctrl:   ctrl,
		logger: zap.NewNop(),
		out:    io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "cleaner"))
	return r
}

// Run walks the plan's range and acts on every artifact. One artifact's
// failure is recorded and the run continues. The error is non-nil only
// when discovery itself stopped; the report is returned either way.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Report, error) {
	rep := newReport()
	if err := plan.validate(); err != nil {
		return rep, err
	}
	q, err := plan.Query()
	if err != nil {
		return rep, err
	}
	engine := plan.Filter
	if engine == nil {
		if engine, err = filter.NewEngine(); err != nil {
			return rep, err
		}
	}
	criteria := plan.Criteria.Describe()

	r.logger.Info("run started",
		zap.String("mode", string(plan.Mode)),
		zap.Bool("dry_run", plan.DryRun),
		zap.Time("from", q.From),
		zap.Time("to", q.To),
		zap.Strings("repos", q.Repos))

	it, err := r.ctrl.IterateInRange(ctx, q)
	if err != nil {
		return rep, err
	}
	defer it.Close()

	for it.Next() {
		a := it.Artifact()
		if !plan.Criteria.Matches(a) || engine.ActionFor(a) != filter.Include {
			r.logger.Debug("skipped artifact", zap.Stringer("artifact", a))
			r.decide(rep, a, models.DispositionSkipped, criteria, "")
			continue
		}
		r.process(ctx, plan, rep, a, criteria)
	}

	rep.Unresolved = it.Failures()
	for _, f := range rep.Unresolved {
		r.logger.Warn("artifact could not be resolved", zap.String("uri", f.URI), zap.Error(f.Err))
	}
	if err := it.Err(); err != nil {
		return rep, err
	}
	r.logger.Info("run finished", zap.String("summary", rep.Summary()))
	return rep, nil
}

func (r *Runner) process(ctx context.Context, plan Plan, rep *Report, a *models.Artifact, criteria []string) {
	if plan.ArchiveTo != "" {
		details, err := r.archive(ctx, plan, a)
		if err != nil {
			r.fail(rep, a, criteria, err)
			return
		}
		r.decide(rep, a, models.DispositionArchived, criteria, details)
	}
	if plan.Mode != ModeClean {
		return
	}

	if plan.DryRun {
		fmt.Fprintf(r.out, "Would delete %s\n", a)
	} else if err := r.ctrl.Delete(ctx, a); err != nil {
		r.fail(rep, a, criteria, err)
		return
	}
	r.decide(rep, a, models.DispositionDeleted, criteria, "")
}

func (r *Runner) archive(ctx context.Context, plan Plan, a *models.Artifact) (string, error) {
	if plan.DryRun {
		fmt.Fprintf(r.out, "Would archive %s to %s\n", a, plan.ArchiveTo)
		return "", nil
	}
	path, err := r.ctrl.Archive(ctx, a, plan.ArchiveTo)
	if err != nil {
		return "", err
	}
	if r.mirror == nil {
		return path, nil
	}
	key, err := r.mirror.Upload(ctx, a, path)
	if err != nil {
		return "", err
	}
	return path + " mirrored as " + key, nil
}

func (r *Runner) fail(rep *Report, a *models.Artifact, criteria []string, err error) {
	r.logger.Error("artifact failed", zap.Stringer("artifact", a), zap.Error(err))
	rep.Failures = append(rep.Failures, Failure{Artifact: a, Err: err})
	r.decide(rep, a, models.DispositionFailed, criteria, err.Error())
}

func (r *Runner) decide(rep *Report, a *models.Artifact, d models.Disposition, criteria []string, details string) {
	rep.add(d, a.Size)
	r.metrics.RecordDecision(string(d), a.Size)
	if r.recorder == nil {
		return
	}
	if _, err := r.recorder.Record(a, d, criteria, details); err != nil {
		r.logger.Error("failed to record decision", zap.Stringer("artifact", a), zap.Error(err))
	}
}

// ValidateArchiveDir checks that dir is an existing writable directory and
// returns its resolved absolute path.
func ValidateArchiveDir(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory; the archive location must be an existing directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return "", err
	}
	check, err := os.CreateTemp(abs, ".write-check-*")
	if err != nil {
		return "", fmt.Errorf("unable to write to directory %s: %w", abs, err)
	}
	check.Close()
	os.Remove(check.Name())
	return abs, nil
}
