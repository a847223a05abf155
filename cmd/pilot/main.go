package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"uipilot/internal/application/port/input"
	"uipilot/internal/di"
	"uipilot/internal/domain/entity"
	"uipilot/internal/infrastructure/env"
	"uipilot/internal/usecase/flow"
	"uipilot/internal/usecase/stalldetect"
)

func main() {
	envService := env.NewEnvService()

	budget := envService.GetDuration("FLOW_BUDGET", 15*time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	watchDir := envService.Get("DOWNLOAD_WATCH_DIR")
	if watchDir == "" {
		watchDir = filepath.Join(os.TempDir(), "uipilot-downloads")
	}

	requiredKeys := strings.Split(envService.Get("ARTIFACT_REQUIRED_KEYS"), ",")
	if len(requiredKeys) == 1 && requiredKeys[0] == "" {
		requiredKeys = []string{"installed.client_id", "installed.client_secret"}
	}

	pattern := envService.Get("DOWNLOAD_PATTERN")
	if pattern == "" {
		pattern = "client_secret*.json"
	}

	container, err := di.NewContainer(ctx, di.Config{
		OpenRouterAPIKey: envService.MustGet("OPENROUTER_API_KEY"),
		OpenRouterModel:  envService.MustGet("OPENROUTER_MODEL_NAME"),
		BrowserHeadless:  envService.GetBool("BROWSER_HEADLESS", false),
		SessionName:      "credential-flow",
		RecoveryURL:      envService.MustGet("CONSOLE_CREDENTIALS_URL"),
		WatchDir:         watchDir,
		ArtifactDest:     envService.MustGet("ARTIFACT_DEST"),
		RequiredKeys:     requiredKeys,
		RetryCeiling:     envService.GetInt("RETRY_CEILING", 3),
		FlowConfig: flow.Config{
			Budget:          budget,
			MaxSteps:        envService.GetInt("FLOW_MAX_STEPS", 40),
			DownloadPattern: pattern,
			DownloadTimeout: envService.GetDuration("DOWNLOAD_TIMEOUT", 90*time.Second),
		},
		StallConfig: stalldetect.Config{
			WindowSize: envService.GetInt("STALL_WINDOW", 2),
			Tolerance:  envService.GetInt("STALL_TOLERANCE", 4),
		},
	})
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer container.Close()

	container.Logger.Info("Flow started", "budget", budget.String(), "watchDir", watchDir)
	fmt.Println("Driving the credential provisioning flow...")

	result, err := container.Flow.Run(ctx, entity.StateUnknown, entity.StateDone, func(ev input.StepEvent) {
		container.Handoff.ShowStep(ctx, ev.Step, ev.State, ev.Action, ev.Result)
	})
	if err != nil {
		container.Logger.Error("Flow failed", "error", err)
		fmt.Printf("\nFlow error: %v\n", err)
		os.Exit(1)
	}

	container.Logger.Info("Flow finished",
		"success", result.Success,
		"steps", result.Steps,
		"escalated", result.Escalated,
	)

	if !result.Success {
		fmt.Printf("\nFlow did not complete: %s\n", result.Message)
		os.Exit(1)
	}

	fmt.Printf("\nDone in %d steps. Artifact: %s\n", result.Steps, result.ArtifactPath)
}
