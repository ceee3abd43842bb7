package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/appstream-tools/dep11-generator/cache"
	"github.com/appstream-tools/dep11-generator/config"
	"github.com/appstream-tools/dep11-generator/generator"
	"github.com/appstream-tools/dep11-generator/logger"
	"github.com/appstream-tools/dep11-generator/report"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "process":
		runProcess(os.Args[2:])
	case "cleanup":
		runCleanup(os.Args[2:])
	case "update_html":
		runUpdateHTML(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: dep11-generator <command> [flags] <dir> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  process <dir> <suite>   generate DEP-11 metadata for one suite")
	fmt.Fprintln(os.Stderr, "  cleanup <dir>           remove cache entries and assets of vanished packages")
	fmt.Fprintln(os.Stderr, "  update_html <dir>       regenerate the HTML hint reports")
	fmt.Fprintf(os.Stderr, "<dir> must contain a %s file.\n", config.ConfigFileName)
}

func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	timeout := fs.Duration("task-timeout", 10*time.Minute, "Per-package extraction timeout (0 disables)")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: dep11-generator process [flags] <dir> <suite>")
		os.Exit(2)
	}

	cfg := loadConfig(fs.Arg(0), *logLevel)
	defer logger.Sync()

	c := openCache(cfg)
	defer c.Close()

	engine := generator.New(cfg, c, generator.WithTaskTimeout(*timeout))
	if err := engine.Process(fs.Arg(1)); err != nil {
		logger.L().Errorw("processing failed", "suite", fs.Arg(1), "error", err)
		os.Exit(3)
	}
}

func runCleanup(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: dep11-generator cleanup [flags] <dir>")
		os.Exit(2)
	}

	cfg := loadConfig(fs.Arg(0), *logLevel)
	defer logger.Sync()

	c := openCache(cfg)
	defer c.Close()

	if err := generator.New(cfg, c).Cleanup(); err != nil {
		logger.L().Errorw("cleanup failed", "error", err)
		os.Exit(3)
	}
}

func runUpdateHTML(args []string) {
	fs := flag.NewFlagSet("update_html", flag.ExitOnError)
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: dep11-generator update_html [flags] <dir>")
		os.Exit(2)
	}

	cfg := loadConfig(fs.Arg(0), *logLevel)
	defer logger.Sync()

	c := openCache(cfg)
	defer c.Close()

	if err := report.New(cfg, c).Build(); err != nil {
		logger.L().Errorw("report generation failed", "error", err)
		os.Exit(3)
	}
}

// loadConfig initializes logging and loads the configuration, exiting on
// failure since nothing can run without it.
func loadConfig(dir, logLevel string) *config.Config {
	if err := logger.Init(logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openCache(cfg *config.Config) *cache.Cache {
	c, err := cache.Open(cfg.CacheDir)
	if err != nil {
		logger.L().Errorw("could not open cache", "dir", cfg.CacheDir, "error", err)
		os.Exit(3)
	}
	return c
}
