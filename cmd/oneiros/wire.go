package main

import (
	"context"
	"fmt"

	"github.com/PabloGalante/oneiros/internal/adapters/llm"
	memstore "github.com/PabloGalante/oneiros/internal/adapters/storage/memory"
	"github.com/PabloGalante/oneiros/internal/app/chat"
	"github.com/PabloGalante/oneiros/internal/app/pipeline"
	"github.com/PabloGalante/oneiros/internal/app/studio"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/config"
	"github.com/PabloGalante/oneiros/internal/credential"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/observability"
)

// needsKey reports whether the configured gateway authenticates with a
// user-selected API key.
func needsKey(cfg *config.Config) bool {
	return !cfg.LLM.UseMock && cfg.LLM.Backend == config.BackendGemini
}

func buildGateway(ctx context.Context, cfg *config.Config, keys *credential.Store, sel domain.KeySelector) (domain.Gateway, error) {
	log := observability.Component("wire")

	if cfg.LLM.UseMock {
		log.Info("using mock gateway")
		return llm.NewMockGateway(), nil
	}

	log.Info("using gemini gateway", "backend", cfg.LLM.Backend)
	gw, err := llm.NewGeminiGateway(ctx, llm.Options{
		Backend:  cfg.LLM.Backend,
		Project:  cfg.LLM.Project,
		Location: cfg.LLM.Location,
		BaseURL:  cfg.LLM.BaseURL,
		Keys:     keys,
		Selector: sel,
		Models: llm.Models{
			Transcribe: cfg.LLM.Models.Transcribe,
			Analyze:    cfg.LLM.Models.Analyze,
			Illustrate: cfg.LLM.Models.Illustrate,
			Chat:       cfg.LLM.Models.Chat,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing gateway: %w", err)
	}
	return gw, nil
}

func buildStudio(
	cfg *config.Config,
	gw domain.Gateway,
	dev capture.Device,
	sel domain.KeySelector,
	events domain.EventPublisher,
) *studio.Studio {
	dreams := memstore.NewDreamStore()
	messages := memstore.NewMessageStore()

	ctrl := pipeline.NewController(pipeline.Options{
		Stages:   pipeline.DefaultStages(gw),
		Store:    dreams,
		Selector: sel,
		Events:   events,
	})

	return studio.New(studio.Options{
		Device:      dev,
		Tick:        cfg.Capture.Tick,
		Pipeline:    ctrl,
		Dreams:      dreams,
		Chat:        chat.NewService(gw, dreams, messages, events),
		Events:      events,
		DefaultTier: cfg.Studio.DefaultImageSize,
	})
}
