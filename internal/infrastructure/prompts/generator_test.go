package prompts

import (
	"strings"
	"testing"
)

func TestBuildClassifyPrompt(t *testing.T) {
	result, err := BuildClassifyPrompt([]string{"credentials_list", "create_form", "done"})
	if err != nil {
		t.Fatalf("BuildClassifyPrompt failed: %v", err)
	}

	for _, label := range []string{"credentials_list", "create_form", "done"} {
		if !strings.Contains(result, "- "+label) {
			t.Errorf("Result should list label %q:\n%s", label, result)
		}
	}

	if !strings.Contains(result, "unknown") {
		t.Error("Result should name the fallback answer")
	}
}

func TestBuildClassifyPromptEmptyLabels(t *testing.T) {
	result, err := BuildClassifyPrompt(nil)
	if err != nil {
		t.Fatalf("BuildClassifyPrompt failed: %v", err)
	}

	if !strings.Contains(result, "screen states") {
		t.Error("Result should contain base template text")
	}
}

func TestBuildLocatePrompt(t *testing.T) {
	result, err := BuildLocatePrompt("CREATE CREDENTIALS", 1280, 720)
	if err != nil {
		t.Fatalf("BuildLocatePrompt failed: %v", err)
	}

	if !strings.Contains(result, `"CREATE CREDENTIALS"`) {
		t.Errorf("Result should quote the target:\n%s", result)
	}

	if !strings.Contains(result, "1280") || !strings.Contains(result, "720") {
		t.Error("Result should carry the screenshot dimensions")
	}

	if !strings.Contains(result, `{"found": false}`) {
		t.Error("Result should show the not-found shape")
	}
}

func TestRenderInvalidTemplate(t *testing.T) {
	_, err := render("bad", `Test {{.MissingField}}`, ClassifyPromptData{})
	if err == nil {
		t.Error("Expected error for invalid template, got nil")
	}
}
