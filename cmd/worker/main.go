package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"agent_workbench/internal/remote"
	"agent_workbench/internal/scheduler"
	"agent_workbench/platform/config"
	"agent_workbench/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting prospectus worker", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := remote.New(cfg, log)

	worker, err := scheduler.NewWorker(cfg, client, log)
	if err != nil {
		log.Error("failed to initialize prospectus worker", "error", err)
		panic("failed to initialize prospectus worker: " + err.Error())
	}

	worker.Run(ctx)
}
