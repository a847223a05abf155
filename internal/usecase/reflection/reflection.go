package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
)

// Proposal is the model's verdict on a failed step: either a concrete
// alternative worth one more attempt, or a handoff to a human.
type Proposal struct {
	ShouldEscalate bool   `json:"should_escalate"`
	Alternative    string `json:"alternative"`
	Analysis       string `json:"analysis"`
}

// Failure describes one failed step for analysis: what was attempted
// and the evidence contradicting the reported outcome.
type Failure struct {
	State    entity.FlowState
	Target   string
	Kind     entity.ActionKind
	Class    string
	Evidence string
	Attempts int
}

type Reflector struct {
	vision output.VisionPort
	logger output.LoggerPort
}

func New(vision output.VisionPort, logger output.LoggerPort) *Reflector {
	return &Reflector{
		vision: vision,
		logger: logger,
	}
}

// Analyze asks the model why the action did not take and what to do
// next. A model or parse failure degrades to a plain proposal instead
// of erroring the flow; reflection is advice, never a gate.
func (r *Reflector) Analyze(ctx context.Context, f Failure) *Proposal {
	answer, err := r.vision.Reflect(ctx, buildPrompt(f))
	if err != nil {
		r.logger.Warn("reflection request failed", "error", err)
		return &Proposal{
			ShouldEscalate: f.Attempts > 1,
			Analysis:       fmt.Sprintf("reflection unavailable: %v", err),
		}
	}

	prop, err := parseProposal(answer)
	if err != nil {
		r.logger.Warn("unparseable reflection, keeping raw text", "error", err)
		return &Proposal{
			ShouldEscalate: f.Attempts > 1,
			Analysis:       strings.TrimSpace(answer),
		}
	}

	r.logger.Info("reflection completed",
		"state", string(f.State),
		"target", f.Target,
		"should_escalate", prop.ShouldEscalate,
	)
	return prop
}

func buildPrompt(f Failure) string {
	var b strings.Builder
	b.WriteString(`You are reviewing a failed UI automation step. The automation clicked or typed something, but the evidence below contradicts success.

Respond with valid JSON only:
{
  "should_escalate": true/false,
  "alternative": "a different concrete action to try, or empty",
  "analysis": "one short paragraph: what probably went wrong"
}

Suggest an alternative only if the evidence points at a specific fix (wrong label, element off-screen, dialog in the way). Escalate when the screen does not match any expectation.

`)
	fmt.Fprintf(&b, "Screen state: %s\n", f.State)
	fmt.Fprintf(&b, "Attempted action: %s %q\n", f.Kind, f.Target)
	fmt.Fprintf(&b, "Failure class: %s\n", f.Class)
	fmt.Fprintf(&b, "Attempts at this step so far: %d\n", f.Attempts)
	fmt.Fprintf(&b, "Evidence:\n%s\n", f.Evidence)
	return b.String()
}

func parseProposal(answer string) (*Proposal, error) {
	answer = strings.TrimSpace(answer)

	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var prop Proposal
	if err := json.Unmarshal([]byte(answer[start:end+1]), &prop); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &prop, nil
}
