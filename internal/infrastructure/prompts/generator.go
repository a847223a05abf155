package prompts

import (
	"bytes"
	"text/template"
)

type ClassifyPromptData struct {
	Labels []string
}

type LocatePromptData struct {
	Target string
	Width  int
	Height int
}

// BuildClassifyPrompt renders the state-classification prompt over the
// allowed label set.
func BuildClassifyPrompt(labels []string) (string, error) {
	return render("classify_state", ClassifyStatePrompt, ClassifyPromptData{Labels: labels})
}

// BuildLocatePrompt renders the target-location prompt for one control
// on a screenshot of the given dimensions.
func BuildLocatePrompt(target string, width, height int) (string, error) {
	return render("locate_target", LocateTargetPrompt, LocatePromptData{
		Target: target,
		Width:  width,
		Height: height,
	})
}

func render(name, base string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(base)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
