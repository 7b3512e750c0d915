package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/container"
	"github.com/zfogg/friendlypix/internal/handlers"
	"go.uber.org/zap"
)

var (
	progress *log.Logger
	jsonAPI  = jsoniter.ConfigCompatibleWithStandardLibrary

	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func initLog(verbose bool) {
	progress = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	progress.SetLevel(log.InfoLevel)
	if verbose {
		progress.SetLevel(log.DebugLevel)
	}
}

// session builds the container and the in-process trigger surface
func session(ctx context.Context) (*handlers.Handlers, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	zl := zap.NewNop()
	if verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		zl = dev
	}
	progress.Debug("Connecting", "database", cfg.DatabaseDriver, "storage", cfg.StorageDriver)
	c, err := container.Build(ctx, cfg, zl)
	if err != nil {
		return nil, nil, err
	}
	return handlers.NewHandlers(c), func() { _ = c.Cleanup(context.Background()) }, nil
}

// invoke runs one action and prints its result
func invoke(ctx context.Context, a handlers.Action, text func(any)) error {
	h, done, err := session(ctx)
	if err != nil {
		return err
	}
	defer done()

	progress.Info("Running", "action", a.Action)
	res, err := h.Invoke(ctx, a)
	if output == "json" {
		if res != nil {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		return err
	}
	if res != nil && text != nil {
		text(res)
	}
	return err
}

func printJSON(v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
