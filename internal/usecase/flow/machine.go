package flow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"uipilot/internal/application/port/input"
	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
	"uipilot/internal/usecase/reflection"
)

var _ input.FlowRunner = (*Machine)(nil)

// Reflector analyzes a failed step before the machine decides between
// another attempt and a human handoff.
type Reflector interface {
	Analyze(ctx context.Context, f reflection.Failure) *reflection.Proposal
}

// Machine drives one bounded multi-screen workflow. Every motor action
// goes through the router so the retry and stall guards apply
// uniformly; the machine itself only observes, classifies and decides.
type Machine struct {
	router    input.ActionPerformer
	ui        output.UIPort
	vision    output.VisionPort
	downloads output.DownloadPort
	reflector Reflector
	handoff   output.HandoffPort
	logger    output.LoggerPort
	table     map[entity.FlowState]entity.ActionTableEntry
	cfg       Config

	trace          entity.FlowTrace
	failures       map[string]int
	shots          []*entity.Screenshot
	lastReflection string
}

type Config struct {
	MaxSteps        int
	Budget          time.Duration
	EscalateAfter   int
	RecoveryURL     string
	WatchDir        string
	DownloadPattern string
	DownloadTimeout time.Duration
	ArtifactDest    string
	RequiredKeys    []string
	EvidenceSize    int
}

func DefaultConfig() Config {
	return Config{
		MaxSteps:        40,
		Budget:          15 * time.Minute,
		EscalateAfter:   2,
		DownloadTimeout: 90 * time.Second,
		EvidenceSize:    5,
	}
}

func New(
	router input.ActionPerformer,
	ui output.UIPort,
	vision output.VisionPort,
	downloads output.DownloadPort,
	reflector Reflector,
	handoff output.HandoffPort,
	logger output.LoggerPort,
	table map[entity.FlowState]entity.ActionTableEntry,
	cfg Config,
) *Machine {
	def := DefaultConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = def.EscalateAfter
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = def.DownloadTimeout
	}
	if cfg.EvidenceSize <= 0 {
		cfg.EvidenceSize = def.EvidenceSize
	}
	return &Machine{
		router:    router,
		ui:        ui,
		vision:    vision,
		downloads: downloads,
		reflector: reflector,
		handoff:   handoff,
		logger:    logger,
		table:     table,
		cfg:       cfg,
		failures:  make(map[string]int),
	}
}

type pendingAction struct {
	state   entity.FlowState
	spec    entity.ActionSpec
	key     string
	message string
}

// Run executes the workflow until the goal state is reached and the
// artifact verified, a human takes over, or a hard ceiling fires.
// Ceilings are checked at the top of every iteration so cancellation is
// observed between steps, not only at blocking calls.
func (m *Machine) Run(ctx context.Context, entryState, goal entity.FlowState, onStep func(input.StepEvent)) (*entity.FlowResult, error) {
	start := time.Now()

	if err := m.downloads.StartWatching(m.cfg.WatchDir); err != nil {
		return nil, fmt.Errorf("start download watch: %w", err)
	}

	m.logger.Info("flow started",
		"entry", string(entryState),
		"goal", string(goal),
		"max_steps", m.cfg.MaxSteps,
		"budget", m.cfg.Budget.String(),
	)

	states := m.allowedStates(goal)
	var pending *pendingAction

	for step := 1; ; step++ {
		if step > m.cfg.MaxSteps {
			return m.incomplete(fmt.Sprintf("incomplete: step ceiling (%d) reached", m.cfg.MaxSteps), step-1), nil
		}
		if elapsed := time.Since(start); elapsed > m.cfg.Budget {
			return m.incomplete(fmt.Sprintf("incomplete: time budget (%s) exhausted", m.cfg.Budget), step-1), nil
		}
		if err := ctx.Err(); err != nil {
			return m.incomplete("incomplete: "+err.Error(), step-1), err
		}

		stepStart := time.Now()

		shot, err := m.ui.Screenshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("screenshot: %w", err)
		}
		m.keepShot(shot)

		state, err := m.vision.ClassifyState(ctx, shot, states)
		if err != nil {
			m.logger.Warn("classifier failed, treating screen as unknown", "error", err)
			state = entity.StateUnknown
		}

		// Verify the previous action actually moved the UI. The router
		// may have reported success; the classifier is the arbiter.
		if pending != nil && state == pending.state {
			evidence := fmt.Sprintf("router reported %q but the screen still classifies as %s", pending.message, state)
			m.logger.Warn("transition failure", "state", string(state), "target", pending.spec.Target)
			if stop, out := m.noteFailure(ctx, state, pending.spec, pending.key, "transition", evidence, false); stop {
				m.recordStep(step, state, describe(pending.spec), "transition failure: escalated", stepStart, onStep)
				return out, nil
			}
		}
		pending = nil

		if state == goal {
			return m.finish(ctx, step, state, stepStart, onStep)
		}

		entry, ok := m.table[state]
		if !ok || len(entry.Actions) == 0 {
			// Unmodeled screen: canonical recovery instead of guessing.
			m.logger.Warn("unmodeled screen, recovering", "state", string(state), "url", m.ui.CurrentURL())
			if err := m.ui.Navigate(ctx, m.cfg.RecoveryURL); err != nil {
				m.logger.Error("recovery navigation failed", "error", err)
			}
			m.recordStep(step, state, "recover", "navigated to "+m.cfg.RecoveryURL, stepStart, onStep)
			continue
		}

		visible, err := m.ui.VisibleText(ctx)
		if err != nil {
			m.logger.Warn("visible text unavailable", "error", err)
		}

		spec, found := chooseAction(entry, visible)
		if !found {
			first := entry.Actions[0]
			key := stepKey(state, first)
			evidence := fmt.Sprintf("target %q not visible on screen %s", first.Target, state)
			m.logger.Warn("precondition failure", "state", string(state), "target", first.Target)
			if stop, out := m.noteFailure(ctx, state, first, key, "precondition", evidence, false); stop {
				m.recordStep(step, state, describe(first), "precondition failure: escalated", stepStart, onStep)
				return out, nil
			}
			m.recordStep(step, state, describe(first), "precondition failure: target not visible", stepStart, onStep)
			continue
		}

		key := stepKey(state, spec)
		res, err := m.router.Perform(ctx, entity.ActionRequest{
			Target:     spec.Target,
			Kind:       spec.Kind,
			Text:       spec.Text,
			StepID:     fmt.Sprintf("step-%d", step),
			Screenshot: shot,
		})
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}

		switch {
		case res.Strategy == entity.StrategyEscalate:
			if stop, out := m.noteFailure(ctx, state, spec, key, "retry-exhausted", res.Message, true); stop {
				m.recordStep(step, state, describe(spec), "retry exhausted: escalated", stepStart, onStep)
				return out, nil
			}
			m.recordStep(step, state, describe(spec), res.Message, stepStart, onStep)

		case !res.Success && strings.HasPrefix(res.Message, "stall:"):
			// The screen swallowed a reportedly successful action.
			// Force the canonical navigation; the router's ledger
			// already bounds further attempts at this key.
			if err := m.ui.Navigate(ctx, m.cfg.RecoveryURL); err != nil {
				m.logger.Error("recovery navigation failed", "error", err)
			}
			m.recordStep(step, state, describe(spec), res.Message+"; recovered", stepStart, onStep)

		case !res.Success:
			if stop, out := m.noteFailure(ctx, state, spec, key, "locator", res.Message, false); stop {
				m.recordStep(step, state, describe(spec), "locator failure: escalated", stepStart, onStep)
				return out, nil
			}
			m.recordStep(step, state, describe(spec), res.Message, stepStart, onStep)

		default:
			pending = &pendingAction{state: state, spec: spec, key: key, message: res.Message}
			m.recordStep(step, state, describe(spec), res.Message, stepStart, onStep)
		}
	}
}

// Trace returns the step history recorded so far.
func (m *Machine) Trace() []entity.StepRecord {
	return m.trace.Records()
}

// finish is the download join point: the flow blocks here, and only
// here, on the watcher.
func (m *Machine) finish(ctx context.Context, step int, state entity.FlowState, stepStart time.Time, onStep func(input.StepEvent)) (*entity.FlowResult, error) {
	rec, err := m.downloads.WaitForDownload(ctx, m.cfg.DownloadPattern, m.cfg.DownloadTimeout)
	if err != nil {
		m.recordStep(step, state, "await download", "artifact missing: "+err.Error(), stepStart, onStep)
		return &entity.FlowResult{
			Success: false,
			Message: fmt.Sprintf("goal state reached but no artifact matched %q: %v", m.cfg.DownloadPattern, err),
			Steps:   step,
		}, nil
	}

	if err := m.downloads.MoveAndVerify(rec.Path, m.cfg.ArtifactDest, m.cfg.RequiredKeys); err != nil {
		m.recordStep(step, state, "await download", "artifact invalid: "+err.Error(), stepStart, onStep)
		return &entity.FlowResult{
			Success: false,
			Message: fmt.Sprintf("artifact failed verification: %v", err),
			Steps:   step,
		}, nil
	}

	m.recordStep(step, state, "await download", "artifact verified: "+m.cfg.ArtifactDest, stepStart, onStep)
	m.logger.Info("flow completed", "steps", step, "artifact", m.cfg.ArtifactDest)
	return &entity.FlowResult{
		Success:      true,
		Message:      "flow complete",
		ArtifactPath: m.cfg.ArtifactDest,
		Steps:        step,
	}, nil
}

// noteFailure counts a failure against the (state, action) key, runs
// reflection, and escalates once the key fails EscalateAfter times,
// when reflection votes for a handoff, or immediately when force is
// set, i.e. the router exhausted retries. A
// human instruction clears the key and the flow resumes from its last
// known state; an empty instruction stops the run as paused.
func (m *Machine) noteFailure(ctx context.Context, state entity.FlowState, spec entity.ActionSpec, key, class, evidence string, force bool) (bool, *entity.FlowResult) {
	m.failures[key]++
	attempts := m.failures[key]

	prop := m.reflector.Analyze(ctx, reflection.Failure{
		State:    state,
		Target:   spec.Target,
		Kind:     spec.Kind,
		Class:    class,
		Evidence: evidence,
		Attempts: attempts,
	})
	m.lastReflection = prop.Analysis
	if prop.Alternative != "" {
		m.logger.Info("reflection proposed alternative", "alternative", prop.Alternative)
	}

	if !force && !prop.ShouldEscalate && attempts < m.cfg.EscalateAfter {
		return false, nil
	}

	bundle := &entity.EscalationBundle{
		Question:    fmt.Sprintf("Automation is stuck on screen %q trying to %s %q (%s). What should it do?", state, spec.Kind, spec.Target, class),
		Reflection:  m.lastReflection,
		Trace:       m.trace.Records(),
		Screenshots: m.evidenceShots(),
		State:       state,
		Target:      spec.Target,
	}

	instruction, err := m.handoff.Escalate(ctx, bundle)
	if err != nil {
		m.logger.Error("handoff failed", "error", err)
		instruction = ""
	}
	if instruction == "" {
		return true, &entity.FlowResult{
			Success:   false,
			Escalated: true,
			Message:   fmt.Sprintf("paused for human intervention: %s failure at %s/%s", class, state, spec.Target),
			Steps:     m.trace.Len(),
		}
	}

	m.logger.Info("human instruction received, resuming", "instruction", instruction)
	m.failures[key] = 0
	return false, nil
}

func (m *Machine) recordStep(step int, state entity.FlowState, action, result string, stepStart time.Time, onStep func(input.StepEvent)) {
	rec := entity.StepRecord{
		Step:    step,
		State:   state,
		Action:  action,
		Result:  result,
		Elapsed: time.Since(stepStart),
	}
	m.trace.Append(rec)

	// Flushed per step so a crash leaves a diagnosable history.
	m.logger.Info("flow step",
		"step", step,
		"state", string(state),
		"action", action,
		"result", result,
		"elapsed_ms", rec.Elapsed.Milliseconds(),
	)

	if onStep != nil {
		onStep(input.StepEvent{Step: step, State: state, Action: action, Result: result})
	}
}

func (m *Machine) incomplete(msg string, steps int) *entity.FlowResult {
	m.logger.Warn("flow incomplete", "reason", msg, "steps", steps)
	return &entity.FlowResult{Success: false, Message: msg, Steps: steps}
}

func (m *Machine) keepShot(shot *entity.Screenshot) {
	m.shots = append(m.shots, shot)
	if len(m.shots) > m.cfg.EvidenceSize {
		m.shots = m.shots[len(m.shots)-m.cfg.EvidenceSize:]
	}
}

func (m *Machine) evidenceShots() []*entity.Screenshot {
	out := make([]*entity.Screenshot, len(m.shots))
	copy(out, m.shots)
	return out
}

func (m *Machine) allowedStates(goal entity.FlowState) []entity.FlowState {
	set := map[entity.FlowState]struct{}{
		entity.StateUnknown: {},
		entity.StateError:   {},
		goal:                {},
	}
	for s := range m.table {
		set[s] = struct{}{}
	}
	states := make([]entity.FlowState, 0, len(set))
	for s := range set {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// chooseAction picks the first candidate whose target is actually
// visible, so an action attempt is never spent on an absent control.
func chooseAction(entry entity.ActionTableEntry, visible string) (entity.ActionSpec, bool) {
	lower := strings.ToLower(visible)
	for _, a := range entry.Actions {
		if strings.Contains(lower, strings.ToLower(a.Target)) {
			return a, true
		}
	}
	return entity.ActionSpec{}, false
}

func stepKey(state entity.FlowState, spec entity.ActionSpec) string {
	return string(state) + "|" + string(spec.Kind) + "|" + spec.Target
}

func describe(spec entity.ActionSpec) string {
	return fmt.Sprintf("%s %q", spec.Kind, spec.Target)
}
