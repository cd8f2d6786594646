// Package engine builds the configured model backend at startup.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"

	"medreport/config"
	"medreport/gemini"
	"medreport/llm"
	"medreport/metrics"
	"medreport/ollama"
	"medreport/openai"
	"medreport/pipeline"
	"medreport/reporting"
	"medreport/space"
	"medreport/stubllm"
)

const probeTimeout = 30 * time.Second

// New constructs the client for cfg.Backend without contacting it.
func New(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.Backend {
	case config.BackendPipeline:
		return pipeline.NewClient(cfg.PipelineEndpointURL, cfg.HFToken, cfg.ModelID)
	case config.BackendSpace:
		return space.NewClient(cfg.SpaceName, cfg.SpaceURL, cfg.HFToken, cfg.SpaceFnIndex, cfg.TempDir)
	case config.BackendOllama:
		return ollama.NewClient(cfg.OllamaHost, cfg.ModelID)
	case config.BackendGemini:
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ModelID)
	case config.BackendOpenAI:
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelID)
	case config.BackendStub:
		return stubllm.NewClient(), nil
	default:
		return nil, fmt.Errorf("unknown model backend: %s", cfg.Backend)
	}
}

// Load builds the backend and, when enabled, probes it. It never fails the
// process: a broken backend is reported through Startup.Err so the web form
// can still come up and explain what went wrong.
func Load(ctx context.Context, cfg *config.Config) llm.Startup {
	logger := log.WithFields(log.Fields{
		"backend": cfg.Backend,
		"model":   cfg.ModelID,
	})
	logger.Info("Loading model backend...")
	if cfg.Device == "cpu" {
		logger.Warnf("Device: %s, precision: %s. Inference on CPU will be very slow and memory hungry.", cfg.Device, cfg.Precision)
	} else {
		logger.Infof("Device: %s, precision: %s", cfg.Device, cfg.Precision)
	}

	startup := load(ctx, cfg)
	if startup.Err != nil {
		metrics.ModelLoaded.WithLabelValues(cfg.Backend).Set(0)
		logger.WithError(startup.Err).Error("Critical error while loading the model backend")
		reporting.CaptureError(startup.Err, map[string]string{"backend": cfg.Backend, "stage": "startup"})
		return startup
	}

	metrics.ModelLoaded.WithLabelValues(cfg.Backend).Set(1)
	logger.Info("Model backend loaded successfully")
	return startup
}

func load(ctx context.Context, cfg *config.Config) llm.Startup {
	client, err := New(ctx, cfg)
	if err != nil {
		return llm.Startup{Err: err}
	}

	if prober, ok := client.(llm.Prober); ok && cfg.ProbeOnStart {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := prober.Probe(probeCtx); err != nil {
			return llm.Startup{Err: fmt.Errorf("backend probe failed: %w", err)}
		}
	}

	return llm.Startup{Client: client}
}
