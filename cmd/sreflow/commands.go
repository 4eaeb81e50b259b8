package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/config"
	"github.com/sreflow/sreflow/pkg/runtime"
)

const shutdownGrace = 10 * time.Second

// ServeCmd starts the platform and serves until interrupted.
type ServeCmd struct {
	HealthInterval time.Duration `help:"Interval between registry health sweeps." default:"60s"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	rt, err := startRuntime(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer stopRuntime(rt)

	ticker := time.NewTicker(c.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report := rt.HealthReport(ctx)
			unhealthy := 0
			for _, h := range report {
				if !h.Healthy {
					unhealthy++
				}
			}
			if unhealthy > 0 {
				slog.Warn("Health sweep found unhealthy agents", "unhealthy", unhealthy, "total", len(report))
			}
		}
	}
}

// QueryCmd runs one operator query through the orchestrator.
type QueryCmd struct {
	Text   string `arg:"" help:"The operator query."`
	JSON   bool   `help:"Print the full result as JSON instead of the formatted response."`
	Stream bool   `help:"Interactive mode: ambiguity produces selection prompts." default:"true" negatable:""`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := startRuntime(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer stopRuntime(rt)

	resp := rt.Query(ctx, c.Text, c.Stream)
	if resp.Status != agent.StatusSuccess {
		return fmt.Errorf("query failed: %s", resp.Error)
	}

	if c.JSON {
		return printJSON(resp.Result)
	}
	if formatted, ok := resp.Result["formatted_response"].(string); ok && formatted != "" {
		fmt.Println(formatted)
		return nil
	}
	if message, ok := resp.Result["message"].(string); ok && message != "" {
		fmt.Println(message)
		return nil
	}
	return printJSON(resp.Result)
}

// CapabilitiesCmd lists the tool catalog grouped by category.
type CapabilitiesCmd struct{}

func (c *CapabilitiesCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := startRuntime(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer stopRuntime(rt)

	return printJSON(rt.Capabilities())
}

// ValidateCmd validates the configuration file and prints the effective
// configuration.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	rendered, err := cfg.YAML()
	if err != nil {
		return err
	}
	fmt.Println("Configuration is valid.")
	fmt.Print(rendered)
	return nil
}

func startRuntime(ctx context.Context, configPath string) (*runtime.Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	rt := runtime.New(cfg)
	if err := rt.Start(ctx); err != nil {
		return nil, fmt.Errorf("platform start failed: %w", err)
	}
	return rt, nil
}

func stopRuntime(rt *runtime.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	rt.Stop(ctx)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
