package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/adapters/llm"
	"github.com/PabloGalante/haven-agent/internal/adapters/speech"
	"github.com/PabloGalante/haven-agent/internal/app/classifier"
	"github.com/PabloGalante/haven-agent/internal/app/conversation"
	"github.com/PabloGalante/haven-agent/internal/app/events"
	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/config"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

type app struct {
	root     *cobra.Command
	cfg      *config.Config
	logLevel string
}

func newApp() *app {
	a := &app{}

	a.root = &cobra.Command{
		Use:   "haven",
		Short: "Haven, a supportive companion agent",
		Long: `Haven listens, classifies what the user is going through and suggests
a fitting tool or game, asking for confirmation before opening it.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	a.root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	a.root.AddCommand(
		a.newServeCmd(),
		a.newChatCmd(),
	)
	return a
}

// setup loads the configuration and the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	} else if cmd.Name() == "chat" {
		// keep the terminal readable
		cfg.LogLevel = "warn"
	}
	a.cfg = cfg

	if _, err := observability.Init(cfg.LogLevel, cfg.Mode == config.ModeLocal); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	return nil
}

// voiceBuilder turns a synthesizer into a per-session speaker factory.
type voiceBuilder func(synth speech.Synthesizer) conversation.SpeakerFactory

// buildService wires the collaborators. Missing model or speech credentials
// do not fail the build, they surface in each session's transcript instead.
func buildService(ctx context.Context, cfg *config.Config, voices voiceBuilder) (*conversation.Service, error) {
	log := observability.Logger()

	catalog, err := tools.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	model, llmErr := llm.NewClient(ctx, cfg.LLM)
	if llmErr != nil {
		log.Error("model client unavailable", zap.String("provider", string(cfg.LLM.Provider)), zap.Error(llmErr))
		model = llm.Unavailable{Err: llmErr}
	} else {
		log.Info("model client ready", zap.String("provider", string(cfg.LLM.Provider)), zap.String("model", cfg.LLM.Model))
	}

	svcCfg := conversation.Config{
		LLM:               model,
		LLMErr:            llmErr,
		Classifier:        classifier.NewGateway(model, catalog, cfg.Timeouts.Classify),
		Catalog:           catalog,
		Hub:               events.NewHub(64),
		SystemPrompt:      llm.SystemPrompt,
		MaxSessions:       cfg.MaxSessions,
		CompletionTimeout: cfg.Timeouts.Completion,
		FollowUpDelay:     cfg.FollowUpDelay,
	}

	synth, speechErr := speech.NewElevenLabs(cfg.Speech)
	if speechErr != nil {
		log.Warn("speech unavailable", zap.Error(speechErr))
		svcCfg.SpeechErr = speechErr
	} else {
		svcCfg.Speakers = voices(synth)
	}

	return conversation.NewService(svcCfg)
}
