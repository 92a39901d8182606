// Package main starts the engagement telemetry relay and handles termination.
//
// The process pairs one student and one tutor per session code and forwards
// fused expression, posture and mouse signals to the tutor.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	engagementcmd "github.com/Yureshka02/multimodal-student-engagement/internal/cmd/engagement"
)

func main() {
	cfg, err := engagementcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ENGAGEMENT] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engagementcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
