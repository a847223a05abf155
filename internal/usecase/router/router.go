package router

import (
	"context"
	"fmt"
	"time"

	"uipilot/internal/application/port/input"
	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
	"uipilot/internal/usecase/stalldetect"
)

var _ input.ActionPerformer = (*Router)(nil)

// Router turns a semantic action request into native input, falling
// back across locator strategies in a fixed order:
// accessibility -> keyboard search -> vision coordinates -> escalate.
// It never loops beyond that list; exhausted keys and stalls are
// terminal for the attempt and must be recovered by the caller.
type Router struct {
	ui     output.UIPort
	vision output.VisionPort
	ledger *Ledger
	stall  *stalldetect.Detector
	logger output.LoggerPort
	cfg    Config

	evidence []*entity.Screenshot
}

type Config struct {
	StrategyTimeout time.Duration
	SettleTimeout   time.Duration
	SettlePoll      time.Duration
	EvidenceSize    int
}

func DefaultConfig() Config {
	return Config{
		StrategyTimeout: 20 * time.Second,
		SettleTimeout:   15 * time.Second,
		SettlePoll:      500 * time.Millisecond,
		EvidenceSize:    5,
	}
}

func New(ui output.UIPort, vision output.VisionPort, ledger *Ledger, stall *stalldetect.Detector, logger output.LoggerPort, cfg Config) *Router {
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = DefaultConfig().StrategyTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultConfig().SettleTimeout
	}
	if cfg.SettlePoll <= 0 {
		cfg.SettlePoll = DefaultConfig().SettlePoll
	}
	if cfg.EvidenceSize <= 0 {
		cfg.EvidenceSize = DefaultConfig().EvidenceSize
	}
	return &Router{
		ui:     ui,
		vision: vision,
		ledger: ledger,
		stall:  stall,
		logger: logger,
		cfg:    cfg,
	}
}

// Perform executes one semantic action. On any reported success the
// stall detector checks the post-action screenshot; a stalled screen
// overrides the result to failure so the caller performs an explicit
// recovery before retrying.
func (r *Router) Perform(ctx context.Context, req entity.ActionRequest) (*entity.ActionResult, error) {
	key := attemptKey(req)

	if r.ledger.Exceeded(key) {
		res := &entity.ActionResult{
			Strategy:  entity.StrategyEscalate,
			Success:   false,
			Message:   fmt.Sprintf("retry ceiling reached for %q, escalating", req.Target),
			Timestamp: time.Now(),
		}
		r.record(req, res, nil)
		return res, nil
	}

	if req.Kind == entity.ActionWait {
		return r.performWait(ctx, req, key)
	}

	strategy, point, err := r.tryStrategies(ctx, req)
	if err != nil {
		attempts := r.ledger.Increment(key)
		res := &entity.ActionResult{
			Strategy:  strategy,
			Success:   false,
			Message:   fmt.Sprintf("all locator strategies failed (attempt %d): %v", attempts, err),
			Timestamp: time.Now(),
		}
		if r.ledger.Exceeded(key) {
			res.Strategy = entity.StrategyEscalate
			res.Message = fmt.Sprintf("all locator strategies failed and retry ceiling reached: %v", err)
		}
		r.record(req, res, nil)
		return res, nil
	}

	res := &entity.ActionResult{
		Strategy:  strategy,
		Success:   true,
		Message:   fmt.Sprintf("%s %q via %s", req.Kind, req.Target, strategy),
		Point:     point,
		Timestamp: time.Now(),
	}

	// The locator said the input landed; verify the screen agrees.
	post, shotErr := r.ui.Screenshot(ctx)
	if shotErr != nil {
		r.logger.Warn("post-action screenshot failed, skipping stall check", "error", shotErr)
		r.ledger.Reset(key)
		r.record(req, res, nil)
		return res, nil
	}

	stalled, reason, stallErr := r.stall.Check(post)
	if stallErr != nil {
		r.logger.Warn("stall check failed", "error", stallErr)
	}
	if stalled {
		r.ledger.Increment(key)
		res.Success = false
		res.Message = "stall: " + reason
		r.record(req, res, post)
		return res, nil
	}

	r.ledger.Reset(key)
	r.record(req, res, post)
	return res, nil
}

// Evidence returns the most recent post-action screenshots, newest
// last, for escalation bundles.
func (r *Router) Evidence() []*entity.Screenshot {
	out := make([]*entity.Screenshot, len(r.evidence))
	copy(out, r.evidence)
	return out
}

func (r *Router) tryStrategies(ctx context.Context, req entity.ActionRequest) (entity.Strategy, *entity.Point, error) {
	accErr := r.withTimeout(ctx, func(c context.Context) error {
		return r.accessibility(c, req)
	})
	if accErr == nil {
		return entity.StrategyAccessibility, nil, nil
	}
	r.logger.Debug("accessibility locator missed", "target", req.Target, "error", accErr)

	kbdErr := r.withTimeout(ctx, func(c context.Context) error {
		return r.keyboard(c, req)
	})
	if kbdErr == nil {
		return entity.StrategyKeyboard, nil, nil
	}
	r.logger.Debug("keyboard search missed", "target", req.Target, "error", kbdErr)

	var point *entity.Point
	visErr := r.withTimeout(ctx, func(c context.Context) error {
		p, err := r.visionLocate(c, req)
		point = p
		return err
	})
	if visErr == nil {
		return entity.StrategyVision, point, nil
	}
	r.logger.Debug("vision locator missed", "target", req.Target, "error", visErr)

	return entity.StrategyVision, nil,
		fmt.Errorf("accessibility: %v; keyboard: %v; vision: %w", accErr, kbdErr, visErr)
}

func (r *Router) accessibility(ctx context.Context, req entity.ActionRequest) error {
	switch req.Kind {
	case entity.ActionType:
		return r.ui.TypeLabel(ctx, req.Target, req.Text)
	default:
		return r.ui.ClickLabel(ctx, req.Target)
	}
}

func (r *Router) keyboard(ctx context.Context, req entity.ActionRequest) error {
	switch req.Kind {
	case entity.ActionType:
		return r.ui.SearchType(ctx, req.Target, req.Text)
	default:
		return r.ui.SearchClick(ctx, req.Target)
	}
}

func (r *Router) visionLocate(ctx context.Context, req entity.ActionRequest) (*entity.Point, error) {
	shot := req.Screenshot
	if shot == nil {
		fresh, err := r.ui.Screenshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("screenshot for vision locate: %w", err)
		}
		shot = fresh
	}

	p, found, err := r.vision.LocateTarget(ctx, shot, req.Target)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("vision interpreter could not see %q", req.Target)
	}

	if req.Kind == entity.ActionType {
		if err := r.ui.TypeAt(ctx, p, req.Text); err != nil {
			return nil, err
		}
	} else {
		if err := r.ui.ClickAt(ctx, p); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// performWait polls until the screen stops changing or the settle
// timeout elapses. Timing is explicit and bounded, not a blind sleep.
func (r *Router) performWait(ctx context.Context, req entity.ActionRequest, key string) (*entity.ActionResult, error) {
	deadline := time.Now().Add(r.cfg.SettleTimeout)
	var prev uint64
	havePrev := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shot, err := r.ui.Screenshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("settle screenshot: %w", err)
		}

		h, err := stalldetect.Hash(shot)
		if err != nil {
			return nil, err
		}

		if havePrev && stalldetect.Distance(prev, h) <= 0 {
			res := &entity.ActionResult{
				Strategy:  entity.StrategyAccessibility,
				Success:   true,
				Message:   "ui settled",
				Timestamp: time.Now(),
			}
			r.record(req, res, shot)
			return res, nil
		}
		prev, havePrev = h, true

		if time.Now().After(deadline) {
			r.ledger.Increment(key)
			res := &entity.ActionResult{
				Strategy:  entity.StrategyAccessibility,
				Success:   false,
				Message:   fmt.Sprintf("ui did not settle within %s", r.cfg.SettleTimeout),
				Timestamp: time.Now(),
			}
			r.record(req, res, shot)
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.SettlePoll):
		}
	}
}

func (r *Router) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, r.cfg.StrategyTimeout)
	defer cancel()
	return fn(c)
}

// record appends one evidence entry per Perform call: outcome to the
// log, screenshot into the bounded ring used for escalation bundles.
func (r *Router) record(req entity.ActionRequest, res *entity.ActionResult, shot *entity.Screenshot) {
	r.logger.Info("action evidence",
		"step", req.StepID,
		"target", req.Target,
		"kind", string(req.Kind),
		"strategy", string(res.Strategy),
		"success", res.Success,
		"message", res.Message,
	)

	if shot == nil {
		shot = req.Screenshot
	}
	if shot != nil {
		r.evidence = append(r.evidence, shot)
		if len(r.evidence) > r.cfg.EvidenceSize {
			r.evidence = r.evidence[len(r.evidence)-r.cfg.EvidenceSize:]
		}
	}
}

func attemptKey(req entity.ActionRequest) string {
	return string(req.Kind) + "|" + req.Target
}
