// Package worker holds the time-window scanner: it finds upcoming
// engagements, matches them against the owners' time-window rules and
// dispatches each (target, trigger) pair at most once.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crm-automation-api/internal/condition"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/engine"
	"crm-automation-api/internal/logger"
	"crm-automation-api/internal/metrics"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScanStore is the persistence the scanner reads candidates and rules from
// and claims targets in.
type ScanStore interface {
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]domain.Engagement, error)
	GetActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.AutomationRule, error)
	HasSuccessfulExecution(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) (bool, error)
	ClaimTarget(ctx context.Context, arg store.ClaimParams) (bool, error)
	CompleteClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) error
	ReleaseClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType, claimedBy string) error
}

// Config holds the scan window and claim settings of a Scanner.
type Config struct {
	// Closed window, in hours from now, a start time must fall into.
	WindowStartHours float64
	WindowEndHours   float64

	ClaimTTL   time.Duration
	InstanceID string

	// OwnerWorkers is the number of owners scanned in parallel. Candidates
	// of one owner are always handled sequentially.
	OwnerWorkers int

	Now func() time.Time
}

// ScanResult summarizes one tick.
type ScanResult struct {
	Monitor    string        `json:"monitor"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Candidates int           `json:"candidates"`
	Eligible   int           `json:"eligible"`
	Matched    int           `json:"matched"`
	Executed   int           `json:"executed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Untracked  int           `json:"untracked"`
}

func (r *ScanResult) add(o ScanResult) {
	r.Eligible += o.Eligible
	r.Matched += o.Matched
	r.Executed += o.Executed
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.Untracked += o.Untracked
}

// Scanner runs one time-window pass over reminder candidates per tick.
type Scanner struct {
	store   ScanStore
	engine  *engine.Engine
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewScanner validates cfg, fills in defaults and creates a Scanner.
func NewScanner(s ScanStore, e *engine.Engine, cfg Config, log *zap.Logger, m *metrics.Metrics) (*Scanner, error) {
	if s == nil || e == nil {
		return nil, fmt.Errorf("scanner needs a store and an engine")
	}
	if cfg.WindowStartHours > cfg.WindowEndHours {
		return nil, fmt.Errorf("%w: scan window [%v, %v] is empty",
			domain.ErrConfiguration, cfg.WindowStartHours, cfg.WindowEndHours)
	}
	if cfg.OwnerWorkers <= 0 {
		cfg.OwnerWorkers = 1
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 15 * time.Minute
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = "scanner-" + uuid.NewString()[:8]
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		store:   s,
		engine:  e,
		cfg:     cfg,
		logger:  logger.WithContext(log, zap.String("component", "scanner")),
		metrics: m,
	}, nil
}

// Process implements Processor.
func (s *Scanner) Process(ctx context.Context, monitor string) (ScanResult, error) {
	return s.RunScan(ctx, monitor)
}

// RunScan performs one tick. Per-candidate failures end up in the result
// and the ledger; only a failing candidate or rule query is returned as an
// error.
func (s *Scanner) RunScan(ctx context.Context, monitor string) (ScanResult, error) {
	now := s.cfg.Now()
	res := ScanResult{Monitor: monitor, StartedAt: now}
	log := logger.WithContext(s.logger, zap.String("monitor", monitor))

	res, err := s.scan(ctx, log, now, res)
	res.Duration = s.cfg.Now().Sub(now)
	s.metrics.ObserveScan(monitor, res.Duration.Seconds(), res.Candidates, err)

	if err != nil {
		log.Error("scan failed", zap.Error(err))
		return res, err
	}
	logger.LogDuration(log, "scan", res.Duration,
		zap.Int("candidates", res.Candidates),
		zap.Int("matched", res.Matched),
		zap.Int("executed", res.Executed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Scanner) scan(ctx context.Context, log *zap.Logger, now time.Time, res ScanResult) (ScanResult, error) {
	from := now.Add(hours(s.cfg.WindowStartHours))
	to := now.Add(hours(s.cfg.WindowEndHours))

	candidates, err := s.store.ListReminderCandidates(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("could not list candidates: %w", err)
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		log.Debug("no candidates in window", zap.Time("from", from), zap.Time("to", to))
		return res, nil
	}

	rules, err := s.store.GetActiveRulesByTrigger(ctx, domain.TriggerTimeWindow)
	if err != nil {
		return res, fmt.Errorf("could not get time-window rules: %w", err)
	}
	byOwner := make(map[uuid.UUID][]*compiledRule)
	for _, r := range rules {
		byOwner[r.OwnerID] = append(byOwner[r.OwnerID], compileRule(r))
	}

	groups := groupByOwner(candidates)
	log.Info("scanning candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("owners", len(groups)),
		zap.Int("rules", len(rules)),
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, s.cfg.OwnerWorkers)
	)
	for _, g := range groups {
		ownerRules := byOwner[g.ownerID]
		if len(ownerRules) == 0 {
			mu.Lock()
			res.Eligible += s.countEligible(g.candidates, now)
			mu.Unlock()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(g ownerGroup) {
			defer wg.Done()
			defer func() { <-sem }()
			part := s.processOwner(ctx, log, now, g, ownerRules)
			mu.Lock()
			res.add(part)
			mu.Unlock()
		}(g)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("scan interrupted: %w", err)
	}
	return res, nil
}

// compiledRule caches a rule's compilation for one tick. A broken rule is
// recorded as failed once per tick, not once per candidate.
type compiledRule struct {
	rule     domain.AutomationRule
	compiled domain.CompiledRule
	err      error
	once     sync.Once
}

func compileRule(r domain.AutomationRule) *compiledRule {
	c, err := r.Compile()
	return &compiledRule{rule: r, compiled: c, err: err}
}

type ownerGroup struct {
	ownerID    uuid.UUID
	candidates []domain.Engagement
}

// groupByOwner keeps the candidate order inside each group and the order in
// which owners were first seen.
func groupByOwner(candidates []domain.Engagement) []ownerGroup {
	index := make(map[uuid.UUID]int)
	var groups []ownerGroup
	for _, c := range candidates {
		i, ok := index[c.OwnerID]
		if !ok {
			i = len(groups)
			index[c.OwnerID] = i
			groups = append(groups, ownerGroup{ownerID: c.OwnerID})
		}
		groups[i].candidates = append(groups[i].candidates, c)
	}
	return groups
}

func (s *Scanner) countEligible(candidates []domain.Engagement, now time.Time) int {
	n := 0
	for _, c := range candidates {
		if s.inWindow(c.HoursUntilStart(now)) {
			n++
		}
	}
	return n
}

func (s *Scanner) inWindow(h float64) bool {
	return h >= s.cfg.WindowStartHours && h <= s.cfg.WindowEndHours
}

func (s *Scanner) processOwner(ctx context.Context, log *zap.Logger, now time.Time, g ownerGroup, rules []*compiledRule) ScanResult {
	var res ScanResult
	for _, cand := range g.candidates {
		if ctx.Err() != nil {
			return res
		}
		h := cand.HoursUntilStart(now)
		if !s.inWindow(h) {
			continue
		}
		res.Eligible++
		s.processCandidate(ctx, log, cand, h, rules, &res)
	}
	return res
}

// processCandidate runs the first matching rule for one engagement. The
// claim makes the (target, trigger) pair exclusive across overlapping ticks
// and instances.
func (s *Scanner) processCandidate(ctx context.Context, log *zap.Logger, cand domain.Engagement, h float64, rules []*compiledRule, res *ScanResult) {
	target := cand.Target()
	trigger := domain.TriggerTimeWindow
	log = log.With(zap.String("target", target.String()))
	meta := map[string]any{
		"source":          "scanner",
		"hoursUntilStart": h,
		"window":          []float64{s.cfg.WindowStartHours, s.cfg.WindowEndHours},
	}

	// Conditions see the hours computed at tick time, so a target accepted at
	// a window bound is not rejected by a later clock read.
	tickVars := map[string]any{
		"hoursUntilStart": h,
		"engagement":      map[string]any{"hours_until_start": h},
	}

	// Ledger lookup first; the claim below is what makes it race-free.
	done, err := s.store.HasSuccessfulExecution(ctx, target, trigger)
	if err != nil {
		log.Error("could not consult execution ledger", zap.Error(err))
		return
	}
	if done {
		res.Skipped++
		s.metrics.ObserveLedgerSkip()
		return
	}

	for _, cr := range rules {
		if cr.err != nil {
			cr.once.Do(func() {
				out := s.engine.RecordFailure(ctx, cr.rule, target, trigger, cr.err, meta)
				res.Failed++
				if !out.Tracked {
					res.Untracked++
				}
			})
			continue
		}

		vars, err := s.engine.BuildContext(ctx, cr.rule, target, trigger, tickVars)
		if err != nil {
			log.Warn("could not build context", zap.String("automation_id", cr.rule.ID.String()), zap.Error(err))
			return
		}
		if !condition.Matches(cr.compiled.Conditions, vars) {
			continue
		}
		res.Matched++

		claimed, err := s.store.ClaimTarget(ctx, store.ClaimParams{
			Target:       target,
			TriggerType:  trigger,
			AutomationID: cr.rule.ID,
			ClaimedBy:    s.cfg.InstanceID,
			TTL:          s.cfg.ClaimTTL,
		})
		if err != nil {
			log.Error("could not claim target", zap.Error(err))
			return
		}
		if !claimed {
			res.Skipped++
			s.metrics.ObserveLedgerSkip()
			log.Debug("target already handled", zap.String("automation_id", cr.rule.ID.String()))
			return
		}

		out := s.engine.Dispatch(ctx, cr.compiled, target, trigger, vars, meta)
		res.Executed++
		if !out.Tracked {
			res.Untracked++
		}
		s.settleClaim(ctx, log, target, trigger, out.Succeeded())
		if out.Succeeded() {
			res.Succeeded++
		} else {
			res.Failed++
		}
		return
	}
}

// settleClaim completes the claim after a success and releases it after a
// failure, so a later tick may retry while the window is still open.
func (s *Scanner) settleClaim(ctx context.Context, log *zap.Logger, target domain.TargetRef, trigger domain.TriggerType, ok bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var err error
	if ok {
		err = s.store.CompleteClaim(ctx, target, trigger)
	} else {
		err = s.store.ReleaseClaim(ctx, target, trigger, s.cfg.InstanceID)
	}
	if err != nil {
		log.Error("could not settle claim", zap.Bool("success", ok), zap.Error(err))
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
