package di

import (
	"context"
	"fmt"

	"uipilot/internal/application/port/input"
	"uipilot/internal/application/port/output"
	"uipilot/internal/infrastructure/browser/rod"
	"uipilot/internal/infrastructure/download"
	"uipilot/internal/infrastructure/llm/openrouter"
	"uipilot/internal/infrastructure/logger"
	"uipilot/internal/infrastructure/userinteraction"
	"uipilot/internal/usecase/flow"
	"uipilot/internal/usecase/reflection"
	"uipilot/internal/usecase/router"
	"uipilot/internal/usecase/stalldetect"
)

type Container struct {
	UI        output.UIPort
	Vision    output.VisionPort
	Logger    output.LoggerPort
	Downloads output.DownloadPort
	Handoff   output.HandoffPort
	Router    input.ActionPerformer
	Flow      input.FlowRunner
}

type Config struct {
	OpenRouterAPIKey string
	OpenRouterModel  string
	BrowserHeadless  bool
	SessionName      string

	RecoveryURL  string
	WatchDir     string
	ArtifactDest string
	RequiredKeys []string

	FlowConfig   flow.Config
	RouterConfig router.Config
	StallConfig  stalldetect.Config
	RetryCeiling int
	BundleDir    string
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	log, err := logger.NewZapAdapter(cfg.SessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	uiCfg := rod.DefaultConfig()
	uiCfg.Headless = cfg.BrowserHeadless
	uiCfg.DownloadDir = cfg.WatchDir
	ui, err := rod.NewAdapter(ctx, uiCfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	visionCfg := openrouter.DefaultConfig(cfg.OpenRouterAPIKey, cfg.OpenRouterModel)
	visionCfg.Logger = log
	vision := openrouter.NewVisionAdapter(visionCfg)

	downloads := download.NewWatcher(log)
	handoff := userinteraction.NewConsoleHandoff(cfg.BundleDir, log)

	ledger := router.NewLedger(cfg.RetryCeiling)
	detector := stalldetect.New(cfg.StallConfig)
	actionRouter := router.New(ui, vision, ledger, detector, log, cfg.RouterConfig)

	reflector := reflection.New(vision, log)

	flowCfg := cfg.FlowConfig
	flowCfg.RecoveryURL = cfg.RecoveryURL
	flowCfg.WatchDir = cfg.WatchDir
	flowCfg.ArtifactDest = cfg.ArtifactDest
	flowCfg.RequiredKeys = cfg.RequiredKeys

	machine := flow.New(
		actionRouter,
		ui,
		vision,
		downloads,
		reflector,
		handoff,
		log,
		flow.CredentialFlowTable(),
		flowCfg,
	)

	return &Container{
		UI:        ui,
		Vision:    vision,
		Logger:    log,
		Downloads: downloads,
		Handoff:   handoff,
		Router:    actionRouter,
		Flow:      machine,
	}, nil
}

func (c *Container) Close() {
	if c.Downloads != nil {
		c.Downloads.Close()
	}
	if c.UI != nil {
		c.UI.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
