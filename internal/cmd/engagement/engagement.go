// Package engagement parses relay command flags and composes the server.
package engagement

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/Yureshka02/multimodal-student-engagement/internal/platform/cmd"
	server "github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/app"
)

// Config holds engagement command configuration.
type Config struct {
	HTTPAddr             string        `env:"ENGAGEMENT_HTTP_ADDR"              envDefault:":8000"`
	GRPCAddr             string        `env:"ENGAGEMENT_GRPC_ADDR"`
	InferenceAddr        string        `env:"ENGAGEMENT_INFERENCE_ADDR"`
	InferenceTimeout     time.Duration `env:"ENGAGEMENT_INFERENCE_TIMEOUT"      envDefault:"750ms"`
	InferenceConcurrency int64         `env:"ENGAGEMENT_INFERENCE_CONCURRENCY"  envDefault:"4"`
	PoseThreshold        float64       `env:"ENGAGEMENT_POSE_THRESHOLD"         envDefault:"0.5"`
	EngagedLabels        []string      `env:"ENGAGEMENT_ENGAGED_LABELS"         envDefault:"neutral,happy,angry" envSeparator:","`
	SessionIdleTTL       time.Duration `env:"ENGAGEMENT_SESSION_IDLE_TTL"       envDefault:"6h"`
	AllowedOrigins       []string      `env:"ENGAGEMENT_ALLOWED_ORIGINS"        envSeparator:","`
	MaxEventsPerSecond   int           `env:"ENGAGEMENT_MAX_EVENTS_PER_SECOND"  envDefault:"120"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP and websocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "session admin gRPC listen address (empty disables)")
	fs.StringVar(&cfg.InferenceAddr, "inference-addr", cfg.InferenceAddr, "inference sidecar gRPC address")
	fs.DurationVar(&cfg.InferenceTimeout, "inference-timeout", cfg.InferenceTimeout, "per-call classifier timeout")
	fs.Int64Var(&cfg.InferenceConcurrency, "inference-concurrency", cfg.InferenceConcurrency, "maximum in-flight classifier calls")
	fs.Float64Var(&cfg.PoseThreshold, "pose-threshold", cfg.PoseThreshold, "pose probability at or above which the student is engaged")
	fs.Var(listFlag{target: &cfg.EngagedLabels}, "engaged-labels", "comma-separated expressions shown as GREEN")
	fs.DurationVar(&cfg.SessionIdleTTL, "session-idle-ttl", cfg.SessionIdleTTL, "drop sessions idle this long (0 disables)")
	fs.Var(listFlag{target: &cfg.AllowedOrigins}, "allowed-origins", "comma-separated browser origins (empty allows any)")
	fs.IntVar(&cfg.MaxEventsPerSecond, "max-events-per-second", cfg.MaxEventsPerSecond, "per-connection event budget")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.InferenceConcurrency <= 0 {
		return Config{}, fmt.Errorf("inference concurrency must be positive, got %d", cfg.InferenceConcurrency)
	}
	if cfg.PoseThreshold < 0 || cfg.PoseThreshold > 1 {
		return Config{}, fmt.Errorf("pose threshold must be within [0,1], got %v", cfg.PoseThreshold)
	}
	return cfg, nil
}

// Run builds the engagement relay and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngagement, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:             cfg.HTTPAddr,
			GRPCAddr:             cfg.GRPCAddr,
			InferenceAddr:        cfg.InferenceAddr,
			InferenceTimeout:     cfg.InferenceTimeout,
			InferenceConcurrency: cfg.InferenceConcurrency,
			PoseThreshold:        cfg.PoseThreshold,
			EngagedLabels:        cfg.EngagedLabels,
			SessionIdleTTL:       cfg.SessionIdleTTL,
			AllowedOrigins:       cfg.AllowedOrigins,
			MaxEventsPerSecond:   cfg.MaxEventsPerSecond,
		}); err != nil {
			return fmt.Errorf("serve engagement: %w", err)
		}
		return nil
	})
}

// listFlag reads a comma-separated flag into a string slice.
type listFlag struct {
	target *[]string
}

func (f listFlag) String() string {
	if f.target == nil {
		return ""
	}
	return strings.Join(*f.target, ",")
}

func (f listFlag) Set(raw string) error {
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	*f.target = values
	return nil
}
