package openrouter

import (
	"strings"
	"testing"

	"uipilot/internal/domain/entity"
)

func TestParseLocation_PlainJSON(t *testing.T) {
	loc, err := parseLocation(`{"found": true, "x": 412, "y": 88}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loc.Found || loc.X != 412 || loc.Y != 88 {
		t.Errorf("unexpected location: %+v", loc)
	}
}

func TestParseLocation_WrappedInProse(t *testing.T) {
	answer := "Sure, here is the location:\n```json\n{\"found\": true, \"x\": 10, \"y\": 20}\n```"
	loc, err := parseLocation(answer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.X != 10 || loc.Y != 20 {
		t.Errorf("unexpected coordinates: %+v", loc)
	}
}

func TestParseLocation_NotFound(t *testing.T) {
	loc, err := parseLocation(`{"found": false}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Found {
		t.Error("expected found=false")
	}
}

func TestParseLocation_Garbage(t *testing.T) {
	if _, err := parseLocation("I cannot see the button"); err == nil {
		t.Error("expected error for non-JSON answer")
	}
}

func TestMatchState(t *testing.T) {
	states := []entity.FlowState{
		entity.StateCredentialsList,
		entity.StateCreateForm,
		entity.StateCreatedModal,
		entity.StateDone,
	}

	cases := []struct {
		answer string
		want   entity.FlowState
	}{
		{"credentials_list", entity.StateCredentialsList},
		{"The screen shows: created_modal", entity.StateCreatedModal},
		{"CREATE_FORM\n", entity.StateCreateForm},
		{"no idea what this is", entity.StateUnknown},
	}

	for _, c := range cases {
		if got := matchState(c.answer, states); got != c.want {
			t.Errorf("matchState(%q) = %q, want %q", c.answer, got, c.want)
		}
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	s := "nothing structured here"
	if got := extractJSON(s); got != s {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestImageDataURL_DefaultsToPNG(t *testing.T) {
	url := imageDataURL(&entity.Screenshot{Data: []byte{1, 2, 3}})
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected data URL prefix: %q", url)
	}
}
