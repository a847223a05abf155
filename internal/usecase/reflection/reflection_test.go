package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"uipilot/internal/domain/entity"
	"uipilot/internal/infrastructure/logger"
)

type scriptedVision struct {
	answer string
	err    error
}

func (s *scriptedVision) LocateTarget(ctx context.Context, shot *entity.Screenshot, target string) (entity.Point, bool, error) {
	return entity.Point{}, false, nil
}

func (s *scriptedVision) ClassifyState(ctx context.Context, shot *entity.Screenshot, states []entity.FlowState) (entity.FlowState, error) {
	return entity.StateUnknown, nil
}

func (s *scriptedVision) Reflect(ctx context.Context, prompt string) (string, error) {
	return s.answer, s.err
}

func sampleFailure() Failure {
	return Failure{
		State:    entity.StateCredentialsList,
		Target:   "CREATE CREDENTIALS",
		Kind:     entity.ActionClick,
		Class:    "transition",
		Evidence: "state unchanged after click",
		Attempts: 1,
	}
}

func TestParseProposal_ValidJSON(t *testing.T) {
	prop, err := parseProposal(`{
  "should_escalate": false,
  "alternative": "scroll down, the button is below the fold",
  "analysis": "the control is off-screen"
}`)
	if err != nil {
		t.Fatalf("parseProposal failed: %v", err)
	}

	if prop.ShouldEscalate {
		t.Error("expected should_escalate=false")
	}
	if prop.Alternative == "" {
		t.Error("expected a non-empty alternative")
	}
	if prop.Analysis != "the control is off-screen" {
		t.Errorf("analysis = %q", prop.Analysis)
	}
}

func TestParseProposal_WithTextAround(t *testing.T) {
	prop, err := parseProposal(`Looking at the evidence:

{"should_escalate": true, "alternative": "", "analysis": "unmodeled dialog"}

That is my verdict.`)
	if err != nil {
		t.Fatalf("parseProposal failed: %v", err)
	}
	if !prop.ShouldEscalate {
		t.Error("expected should_escalate=true")
	}
}

func TestParseProposal_InvalidJSON(t *testing.T) {
	if _, err := parseProposal("no json here"); err == nil {
		t.Error("expected error for missing JSON")
	}
}

func TestAnalyze_ModelErrorDegrades(t *testing.T) {
	r := New(&scriptedVision{err: errors.New("rate limited")}, logger.NewNop())

	prop := r.Analyze(context.Background(), sampleFailure())
	if prop == nil {
		t.Fatal("Analyze must always return a proposal")
	}
	if prop.ShouldEscalate {
		t.Error("single attempt with unavailable reflection must not escalate")
	}
	if !strings.Contains(prop.Analysis, "rate limited") {
		t.Errorf("analysis should carry the cause, got %q", prop.Analysis)
	}
}

func TestAnalyze_UnparseableKeepsRawText(t *testing.T) {
	r := New(&scriptedVision{answer: "the button looked disabled"}, logger.NewNop())

	prop := r.Analyze(context.Background(), sampleFailure())
	if prop.Analysis != "the button looked disabled" {
		t.Errorf("analysis = %q, want raw model text", prop.Analysis)
	}
}

func TestBuildPrompt_CarriesEvidence(t *testing.T) {
	prompt := buildPrompt(sampleFailure())

	for _, want := range []string{"CREATE CREDENTIALS", "transition", "state unchanged after click", "JSON"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
