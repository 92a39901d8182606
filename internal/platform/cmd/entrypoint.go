// Package cmd holds the shared startup sequence for service commands: env
// defaults first, flags second, then the run loop wrapped in tracing setup.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/Yureshka02/multimodal-student-engagement/internal/platform/config"
	"github.com/Yureshka02/multimodal-student-engagement/internal/platform/otel"
	"github.com/Yureshka02/multimodal-student-engagement/internal/platform/timeouts"
)

// ServiceEngagement names the engagement relay in telemetry and logs.
const ServiceEngagement = "engagement"

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs the tracer provider for service, runs run, and
// flushes telemetry once run returns. Shutdown is bounded by
// timeouts.Shutdown and its failure is logged, never returned.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}

	shutdown, err := setupTelemetry(ctx, service)
	if err != nil {
		return fmt.Errorf("setup telemetry for %s: %w", service, err)
	}
	defer flushTelemetry(service, shutdown)
	return run(ctx)
}

// setupTelemetry is swapped in tests.
var setupTelemetry = otel.Setup

func flushTelemetry(service string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%s: telemetry shutdown: %v", service, err)
	}
}
