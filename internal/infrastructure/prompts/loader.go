package prompts

import (
	_ "embed"
)

//go:embed classify_state.txt
var ClassifyStatePrompt string

//go:embed locate_target.txt
var LocateTargetPrompt string
