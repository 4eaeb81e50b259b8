// Command sreflow runs the SRE agent platform.
//
// Usage:
//
//	sreflow serve --config config.yaml
//	sreflow query "check the health of my-app" --config config.yaml
//	sreflow capabilities --config config.yaml
//	sreflow validate --config config.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/sreflow/sreflow/pkg/config"
	"github.com/sreflow/sreflow/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version      VersionCmd      `cmd:"" help:"Show version information."`
	Serve        ServeCmd        `cmd:"" help:"Start the platform and serve until interrupted."`
	Query        QueryCmd        `cmd:"" help:"Run one operator query and print the result."`
	Capabilities CapabilitiesCmd `cmd:"" help:"List the tool catalog grouped by category."`
	Validate     ValidateCmd     `cmd:"" help:"Validate the configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or json)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("sreflow version %s\n", version)
	return nil
}

func initLogger(cli *CLI) (func(), error) {
	level := cli.LogLevel
	if env := os.Getenv("LOG_LEVEL"); level == "info" && env != "" {
		level = env
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		f, closeFn, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = f, closeFn
	}

	logger.Init(logger.ParseLevel(level), output, cli.LogFormat)
	return cleanup, nil
}

func main() {
	config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("sreflow"),
		kong.Description("sreflow - multi-agent SRE operations platform"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
