package userinteraction

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
)

var _ output.HandoffPort = (*ConsoleHandoff)(nil)

// ConsoleHandoff is the terminal side of escalation: it persists the
// evidence bundle to disk, prints a report, and blocks for exactly one
// corrective instruction. An empty line means "stop the flow".
type ConsoleHandoff struct {
	reader    *bufio.Reader
	bundleDir string
	logger    output.LoggerPort
}

func NewConsoleHandoff(bundleDir string, logger output.LoggerPort) *ConsoleHandoff {
	if bundleDir == "" {
		bundleDir = "escalations"
	}
	return &ConsoleHandoff{
		reader:    bufio.NewReader(os.Stdin),
		bundleDir: bundleDir,
		logger:    logger,
	}
}

func (h *ConsoleHandoff) Escalate(ctx context.Context, bundle *entity.EscalationBundle) (string, error) {
	dir, err := h.persistBundle(bundle)
	if err != nil && h.logger != nil {
		h.logger.Warn("Failed to persist escalation bundle", "error", err)
	}

	red := color.New(color.FgRed, color.Bold)
	red.Printf("\n━━━ AUTOMATION STUCK ━━━\n")

	fmt.Printf("State:  %s\n", bundle.State)
	fmt.Printf("Target: %s\n", bundle.Target)
	if bundle.Reflection != "" {
		dim := color.New(color.Faint)
		dim.Printf("Analysis: %s\n", truncate(bundle.Reflection, 500))
	}
	if dir != "" {
		fmt.Printf("Evidence saved to %s\n", dir)
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("\n%s\n", bundle.Question)
	fmt.Print("Instruction (empty to stop)\n> ")

	answer, err := h.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read instruction: %w", err)
	}

	return strings.TrimSpace(answer), nil
}

func (h *ConsoleHandoff) ShowStep(ctx context.Context, step int, state entity.FlowState, action, result string) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("\n━━━ Step %d ━━━\n", step)

	fmt.Printf("State: %s\n", state)
	if action != "" {
		fmt.Printf("Action: %s\n", action)
	}

	if strings.HasPrefix(result, "success") {
		green := color.New(color.FgGreen)
		green.Printf("✓ %s\n", result)
	} else {
		yellow := color.New(color.FgYellow)
		yellow.Printf("⚠ %s\n", truncate(result, 200))
	}
}

// persistBundle writes the screenshots, the step trace and the model's
// analysis under a timestamped directory, so the evidence survives the
// terminal session.
func (h *ConsoleHandoff) persistBundle(bundle *entity.EscalationBundle) (string, error) {
	dir := filepath.Join(h.bundleDir, time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}

	for i, shot := range bundle.Screenshots {
		if shot == nil {
			continue
		}
		ext := shot.Format
		if ext == "" {
			ext = "png"
		}
		name := filepath.Join(dir, fmt.Sprintf("shot_%02d.%s", i, ext))
		if err := os.WriteFile(name, shot.Data, 0o644); err != nil {
			return dir, fmt.Errorf("write screenshot: %w", err)
		}
	}

	traceJSON, err := json.MarshalIndent(bundle.Trace, "", "  ")
	if err == nil {
		if err := os.WriteFile(filepath.Join(dir, "trace.json"), traceJSON, 0o644); err != nil {
			return dir, fmt.Errorf("write trace: %w", err)
		}
	}

	if bundle.Reflection != "" {
		if err := os.WriteFile(filepath.Join(dir, "reflection.txt"), []byte(bundle.Reflection), 0o644); err != nil {
			return dir, fmt.Errorf("write reflection: %w", err)
		}
	}

	return dir, nil
}

// readLine respects context cancellation while blocked on stdin.
func (h *ConsoleHandoff) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)

	go func() {
		line, err := h.reader.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
