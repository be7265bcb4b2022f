// internal/automation/service.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
)

// cleanupTimeout bounds releasing the session, which must happen even when
// the run's own context has already ended.
const cleanupTimeout = 10 * time.Second

// SessionProvider hands out browser sessions. *session.Factory satisfies it.
type SessionProvider interface {
	Acquire(ctx context.Context) (browser.Session, error)
}

// RunRecorder persists run history. *store.Store satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run schemas.RunRecord) error
}

// Service runs the whole automation: acquire a session, walk the workflow,
// extract the result and release the session.
type Service struct {
	sessions   SessionProvider
	definition *Definition
	cfg        config.AutomationConfig
	runner     *Runner
	extractor  *Extractor
	recorder   RunRecorder
	logger     *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithRecorder stores a record of every run.
func WithRecorder(r RunRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// NewService wires the engine from configuration.
func NewService(sessions SessionProvider, def *Definition, cfg config.AutomationConfig, logger *zap.Logger, opts ...Option) *Service {
	logger = logger.Named("automation")
	resolver := NewResolver(ResolverOptionsFromConfig(cfg), NewDiagnostics(cfg.DiagnosticsDir, logger), logger)
	s := &Service{
		sessions:   sessions,
		definition: def,
		cfg:        cfg,
		runner:     NewRunner(resolver, NewStepExecutor(logger), logger),
		extractor:  NewExtractor(logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunFormData validates a decoded formData value and runs it. Invalid input
// is rejected before any session is acquired.
func (s *Service) RunFormData(ctx context.Context, formData interface{}) (*schemas.AutomationResult, *RunReport, error) {
	input, err := schemas.ParseFormData(formData)
	if err != nil {
		return nil, nil, err
	}
	return s.Run(ctx, input)
}

// Run performs one automation. The session is released exactly once on
// every path, including ctx expiring. Non-critical step failures only show
// up in the report.
func (s *Service) Run(ctx context.Context, input schemas.AutomationInput) (result *schemas.AutomationResult, report *RunReport, err error) {
	runID := uuid.NewString()
	report = NewRunReport(runID)
	log := s.logger.With(zap.String("run_id", runID))
	started := time.Now()

	defer func() {
		s.record(report, result, err, started, log)
	}()

	steps := s.definition.Build(input, s.cfg.ClientSelection)
	log.Info("Starting automation run.",
		zap.String("workflow", s.definition.Name),
		zap.Int("steps", len(steps)))
	log.Debug("Signing in.", zap.String("username", input.Username))

	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, report, &SessionError{Op: "acquire", Err: err}
	}
	defer s.release(sess, log)

	page, err := sess.NewPage(ctx)
	if err != nil {
		return nil, report, &SessionError{Op: "new page", Err: err}
	}
	if err := page.Navigate(ctx, s.cfg.SiteURL); err != nil {
		return nil, report, &SessionError{Op: "navigate", Err: err}
	}
	if err := sleep(ctx, s.cfg.InitialSettle); err != nil {
		return nil, report, &SessionError{Op: "initial settle", Err: err}
	}

	if err := s.runner.Run(ctx, page, steps, report); err != nil {
		return nil, report, err
	}

	result = s.extractor.Extract(ctx, page)
	log.Info("Automation run finished.",
		zap.Bool("monthly_income_found", result.MonthlyIncomeGross != nil),
		zap.Int("plans", len(result.Plans)),
		zap.Int("investment_rows", len(result.InvestmentsByYears)),
		zap.Duration("elapsed", time.Since(started)))
	return result, report, nil
}

// release closes the session on a context that outlives the run's.
func (s *Service) release(sess browser.Session, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		log.Warn("Failed to close browser session.", zap.String("session_id", sess.ID()), zap.Error(err))
		return
	}
	log.Debug("Browser session released.", zap.String("session_id", sess.ID()))
}

// record stores the run best effort; a storage failure never fails the run.
func (s *Service) record(report *RunReport, result *schemas.AutomationResult, runErr error, started time.Time, log *zap.Logger) {
	if s.recorder == nil {
		return
	}
	rec := schemas.RunRecord{
		ID:          report.RunID,
		StartedAt:   started.UTC(),
		FinishedAt:  time.Now().UTC(),
		Status:      runStatus(runErr),
		AbortedStep: report.AbortedStep,
		Steps:       report.StepRecords(),
		Result:      result,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.recorder.RecordRun(ctx, rec); err != nil {
		log.Warn("Failed to record run.", zap.Error(err))
	}
}

func runStatus(err error) schemas.RunStatus {
	var critical *CriticalStepFailure
	var cancelled *RunCancelledError
	switch {
	case err == nil:
		return schemas.RunCompleted
	case errors.As(err, &critical), errors.As(err, &cancelled):
		return schemas.RunAborted
	default:
		return schemas.RunFailed
	}
}

// Describe returns the caller facing message for a failed run.
func Describe(err error) string {
	return fmt.Sprintf("Automation failed: %v", err)
}
