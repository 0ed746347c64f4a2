// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the command line tool.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/dosewatch/internal/adapters/chart"
	"github.com/okian/dosewatch/internal/adapters/dataset"
	"github.com/okian/dosewatch/internal/adapters/repository"
	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/outlier"
	"github.com/okian/dosewatch/internal/domain/record"
	"github.com/okian/dosewatch/internal/domain/types"
	"github.com/okian/dosewatch/pkg/logger"
	"github.com/okian/dosewatch/pkg/metrics"
)

// DefaultOutputPath is where committed worklists go unless configured.
const DefaultOutputPath = "updated_CT_doses.csv"

// Sentinel errors returned by the service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrEmptyWorklist = errors.New("worklist is empty; nothing to commit")
)

// snapshot is one loaded dataset. It is replaced wholesale on reload and
// never mutated.
type snapshot struct {
	table    *record.Table
	report   dataset.Report
	source   string
	loadedAt time.Time
}

// Service implements the API dependencies for the dose review system.
type Service struct {
	mu   sync.RWMutex
	data *snapshot

	// Core components
	loader   *dataset.Loader
	sessions repository.Store
	renderer *chart.Renderer

	// Configuration
	datasetPath        string
	outputPath         string
	maxSessions        int
	sessionIdleTimeout time.Duration
	watchDataset       bool
	watchDebounce      time.Duration

	// State
	started  bool
	commitMu sync.Mutex
	reloads  int

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDatasetPath sets the dataset source: a local file or an http(s) URL.
func WithDatasetPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.datasetPath = path
		}
	}
}

// WithOutputPath sets where committed worklists are written.
func WithOutputPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.outputPath = path
		}
	}
}

// WithLoader sets the dataset loader.
func WithLoader(l *dataset.Loader) Option {
	return func(s *Service) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithRenderer sets the chart renderer.
func WithRenderer(r *chart.Renderer) Option {
	return func(s *Service) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.sessions = store
		}
	}
}

// WithMaxSessions bounds the number of open review sessions.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithSessionIdleTimeout expires review sessions left untouched for d.
func WithSessionIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionIdleTimeout = d
		}
	}
}

// WithDatasetWatch enables reloading a local dataset when the file changes.
func WithDatasetWatch(enabled bool, debounce time.Duration) Option {
	return func(s *Service) {
		s.watchDataset = enabled
		if debounce > 0 {
			s.watchDebounce = debounce
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		datasetPath:        "CT_doses.csv",
		outputPath:         DefaultOutputPath,
		maxSessions:        64,
		sessionIdleTimeout: 2 * time.Hour,
		watchDebounce:      500 * time.Millisecond,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the dataset and prepares the session store. A dataset that
// cannot be loaded, for example one missing a required column, is fatal.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.loader == nil {
		s.loader = dataset.NewLoader()
	}
	if s.renderer == nil {
		s.renderer = chart.New()
	}
	ownStore := s.sessions == nil
	if ownStore {
		s.sessions = repository.NewMemoryStore(ctx,
			repository.WithMaxSessions(s.maxSessions),
			repository.WithIdleTimeout(s.sessionIdleTimeout),
		)
	}
	s.mu.Unlock()

	s.logger.Info(ctx, "starting dose review service...", logger.String("dataset", s.datasetPath))
	if err := s.Reload(ctx); err != nil {
		if ownStore {
			s.mu.Lock()
			if closer, ok := s.sessions.(io.Closer); ok {
				_ = closer.Close()
			}
			s.sessions = nil
			s.mu.Unlock()
		}
		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.logger.Info(ctx, "dose review service started",
		logger.Int("records", len(s.current().table.Records)),
		logger.String("output", s.outputPath),
		logger.Int("maxSessions", s.maxSessions),
	)
	return nil
}

// Stop releases background resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if closer, ok := s.sessions.(io.Closer); ok {
		_ = closer.Close()
	}
	s.started = false
	s.logger.Info(context.Background(), "dose review service stopped")
}

// Reload loads the dataset again and swaps it in. On failure the previous
// dataset stays in place.
func (s *Service) Reload(ctx context.Context) error {
	start := time.Now()
	table, rep, err := s.loader.Load(ctx, s.datasetPath)
	metrics.RecordDatasetLoadDuration(time.Since(start))
	if err != nil {
		metrics.RecordDatasetReload("error")
		s.logger.Error(ctx, "dataset load failed", logger.String("source", s.datasetPath), logger.Error(err))
		return fmt.Errorf("load dataset %s: %w", s.datasetPath, err)
	}
	metrics.RecordDatasetReload("ok")
	metrics.RecordDegradedCells(record.ColBookedDate, rep.UnparsedDates)
	metrics.RecordDegradedCells(record.ColDosage, rep.UnparsedDosages)
	metrics.UpdateDatasetRecords(len(table.Records))

	if rep.UnparsedDates > 0 || rep.UnparsedDosages > 0 {
		s.logger.Warn(ctx, "dataset values degraded to null",
			logger.Int("unparsedDates", rep.UnparsedDates),
			logger.Int("unparsedDosages", rep.UnparsedDosages),
		)
	}

	s.mu.Lock()
	s.data = &snapshot{table: table, report: rep, source: s.datasetPath, loadedAt: time.Now()}
	s.reloads++
	s.mu.Unlock()

	s.logger.Info(ctx, "dataset loaded",
		logger.String("source", s.datasetPath),
		logger.Int("records", len(table.Records)),
		logger.Int("emptyDosages", rep.EmptyDosages),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// Watch reloads the dataset whenever the local file changes, until ctx is
// done. It returns immediately when watching is disabled or the dataset is
// a URL.
func (s *Service) Watch(ctx context.Context) error {
	if !s.watchDataset || dataset.IsURL(s.datasetPath) {
		return nil
	}
	w, err := dataset.NewWatcher(s.datasetPath, func(ctx context.Context) {
		_ = s.Reload(ctx)
	}, dataset.WithDebounce(s.watchDebounce), dataset.WithWatchLogger(s.logger))
	if err != nil {
		return fmt.Errorf("watch dataset: %w", err)
	}
	s.logger.Info(ctx, "watching dataset for changes", logger.String("path", s.datasetPath))
	return w.Run(ctx)
}

func (s *Service) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return &snapshot{table: &record.Table{}}
	}
	return s.data
}

// Options returns the filter choices for the loaded dataset.
func (s *Service) Options(_ context.Context) types.Options {
	records := s.current().table.Records
	opts := types.Options{
		Exams:     filter.ExamChoices(records),
		AgeGroups: filter.AgeChoices(records),
		Default:   types.FromCriteria(filter.Default(records)),
	}
	if lo, hi, ok := filter.DateBounds(records); ok {
		opts.DateMin = types.NewDate(&lo)
		opts.DateMax = types.NewDate(&hi)
	}
	return opts
}

// BoundedCriteria returns c with unset date bounds taken from the loaded
// dataset, so undated records are left out as they are on the dashboard.
func (s *Service) BoundedCriteria(_ context.Context, c filter.Criteria) filter.Criteria {
	return filter.WithDateBounds(c, s.current().table.Records)
}

// filtered applies c to the loaded dataset.
func (s *Service) filtered(c filter.Criteria) []record.Record {
	start := time.Now()
	out := filter.Apply(s.current().table.Records, c)
	metrics.RecordFilter(time.Since(start), len(out))
	return out
}

// Records returns the records matching c.
func (s *Service) Records(_ context.Context, c filter.Criteria) types.RecordsView {
	recs := s.filtered(c)
	if len(recs) == 0 {
		metrics.RecordEmptyResult("records")
	}
	return types.RecordsView{Count: len(recs), Records: types.Rows(recs), Message: types.MessageFor(len(recs))}
}

// worklist filters the dataset, selects the rows needing review and applies
// the date range once more to the selection. The second date pass cannot
// remove anything, since every selected row already passed it.
func (s *Service) worklist(c filter.Criteria) ([]record.Record, []record.Annotated) {
	recs := s.filtered(c)

	start := time.Now()
	flagged := outlier.Select(recs)
	metrics.RecordAnnotate(time.Since(start))

	inRange := filter.ByDateRange(c.From, c.To)
	if inRange != nil {
		kept := make([]record.Annotated, 0, len(flagged))
		for _, a := range flagged {
			if inRange(a.Record) {
				kept = append(kept, a)
			}
		}
		flagged = kept
	}
	return recs, flagged
}

// Outliers returns the review worklist for c with per-exam statistics.
func (s *Service) Outliers(_ context.Context, c filter.Criteria) types.OutliersView {
	recs, flagged := s.worklist(c)
	recordFlagReasons(flagged)
	if len(flagged) == 0 {
		metrics.RecordEmptyResult("outliers")
	}
	return types.OutliersView{
		Count:   len(flagged),
		Rows:    types.AnnotatedRows(flagged),
		Stats:   outlier.Report(outlier.Partition(recs)),
		Message: types.MessageFor(len(flagged)),
	}
}

// ExamStats returns per-exam statistics for the records matching c.
func (s *Service) ExamStats(_ context.Context, c filter.Criteria) []outlier.ExamReport {
	return outlier.Report(outlier.Partition(s.filtered(c)))
}

// Histogram renders the dosage distribution for c as PNG. It returns
// chart.ErrNoData when no record matches or none carries a dosage.
func (s *Service) Histogram(_ context.Context, c filter.Criteria, w io.Writer) error {
	values := outlier.Dosages(s.filtered(c))
	if len(values) == 0 {
		metrics.RecordEmptyResult("histogram")
		return chart.ErrNoData
	}
	if err := s.renderer.Histogram(w, "Histogram of Dosage Values", values); err != nil {
		metrics.RecordChartRenderError("histogram")
		return err
	}
	return nil
}

// Scatter renders dosage over booked date for c as PNG.
func (s *Service) Scatter(_ context.Context, c filter.Criteria, w io.Writer) error {
	err := s.renderer.Scatter(w, "Scatter Plot of Dosage Over Time", s.filtered(c))
	switch {
	case errors.Is(err, chart.ErrNoData):
		metrics.RecordEmptyResult("scatter")
	case err != nil:
		metrics.RecordChartRenderError("scatter")
	}
	return err
}

// store returns the session store once the service has started.
func (s *Service) store() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.sessions == nil {
		return nil, ErrNotStarted
	}
	return s.sessions, nil
}

// CreateSession opens a review session over the worklist for c.
func (s *Service) CreateSession(ctx context.Context, c filter.Criteria) (types.SessionView, error) {
	store, err := s.store()
	if err != nil {
		return types.SessionView{}, err
	}
	_, flagged := s.worklist(c)
	sess, err := store.Create(ctx, c, s.current().table.Columns, flagged)
	if err != nil {
		return types.SessionView{}, err
	}
	s.logger.Debug(ctx, "review session created",
		logger.String("session", sess.ID),
		logger.Int("rows", len(sess.Rows)),
	)
	return sessionView(sess), nil
}

// Session returns an open review session.
func (s *Service) Session(ctx context.Context, id string) (types.SessionView, error) {
	store, err := s.store()
	if err != nil {
		return types.SessionView{}, err
	}
	sess, err := store.Get(ctx, id)
	if err != nil {
		return types.SessionView{}, err
	}
	return sessionView(sess), nil
}

// EditRow applies p to one row of a session's worklist. The loaded dataset
// is never modified.
func (s *Service) EditRow(ctx context.Context, id string, index int, p repository.Patch) (types.Row, error) {
	store, err := s.store()
	if err != nil {
		return types.Row{}, err
	}
	row, err := store.UpdateRow(ctx, id, index, p)
	if err != nil {
		return types.Row{}, err
	}
	return types.FromAnnotated(index, row), nil
}

// Commit writes the session's current rows to the output path, replacing
// any previous file in one step.
func (s *Service) Commit(ctx context.Context, id string) (types.CommitResult, error) {
	store, err := s.store()
	if err != nil {
		return types.CommitResult{}, err
	}
	sess, err := store.Get(ctx, id)
	if err != nil {
		return types.CommitResult{}, err
	}
	if len(sess.Rows) == 0 {
		return types.CommitResult{}, ErrEmptyWorklist
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	start := time.Now()
	err = dataset.Save(ctx, s.outputPath, sess.Columns, sess.Rows)
	metrics.RecordCommit(time.Since(start), err)
	if err != nil {
		s.logger.Error(ctx, "commit failed", logger.String("session", id), logger.Error(err))
		return types.CommitResult{}, fmt.Errorf("commit session %s: %w", id, err)
	}
	s.logger.Info(ctx, "changes saved",
		logger.String("session", id),
		logger.String("path", s.outputPath),
		logger.Int("rows", len(sess.Rows)),
		logger.Int("edits", sess.Edits),
	)
	return types.CommitResult{Path: s.outputPath, Rows: len(sess.Rows)}, nil
}

// DeleteSession closes a review session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"datasetPath": s.datasetPath,
		"outputPath":  s.outputPath,
		"maxSessions": s.maxSessions,
		"reloads":     s.reloads,
	}

	if s.data != nil {
		stats["records"] = len(s.data.table.Records)
		stats["loadedFrom"] = s.data.source
		stats["loadedAt"] = s.data.loadedAt.UTC().Format(time.RFC3339)
		stats["unparsedDates"] = s.data.report.UnparsedDates
		stats["unparsedDosages"] = s.data.report.UnparsedDosages
		stats["emptyDosages"] = s.data.report.EmptyDosages
	}
	if s.sessions != nil {
		n := s.sessions.Count(ctx)
		stats["sessions"] = n
		metrics.UpdateSessionsActive(n)
	}

	return stats
}

func sessionView(sess repository.Session) types.SessionView {
	return types.SessionView{
		ID:        sess.ID,
		Criteria:  types.FromCriteria(sess.Criteria),
		Columns:   dataset.OutputColumns(sess.Columns),
		Count:     len(sess.Rows),
		Rows:      types.AnnotatedRows(sess.Rows),
		Edits:     sess.Edits,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Message:   types.MessageFor(len(sess.Rows)),
	}
}

func recordFlagReasons(rows []record.Annotated) {
	var null, zero, band int
	for _, r := range rows {
		switch {
		case r.Dosage == nil:
			null++
		case *r.Dosage == 0:
			zero++
		default:
			band++
		}
	}
	metrics.RecordFlagged("null", null)
	metrics.RecordFlagged("zero", zero)
	metrics.RecordFlagged("band", band)
}
