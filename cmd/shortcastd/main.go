// Command shortcastd runs the shortcast daemon: the HTTP API, the job
// workers, and the retention sweeper.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"shortcast/internal/config"
	"shortcast/internal/daemonrun"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("shortcastd", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file path")
	logLevel := fs.String("log-level", "", "Override logging.level")
	development := fs.Bool("dev", false, "Human-readable console logs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
		Version:     version,
	})
}
