// Command reducer runs one campaign from the command line and writes the
// polar, the reduced frame and the workbook to the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/geisspaul/MoProMa-Auswertung/internal/config"
	"github.com/geisspaul/MoProMa-Auswertung/internal/infrastructure"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/services"
)

// targetList collects repeated -target alpha:re flags
type targetList []segments.Target

func (l *targetList) String() string {
	parts := make([]string, len(*l))
	for i, t := range *l {
		parts[i] = fmt.Sprintf("%g:%g", t.Alpha, t.Re)
	}
	return strings.Join(parts, ",")
}

func (l *targetList) Set(s string) error {
	alpha, re, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("target %q: want alpha:re", s)
	}
	a, err := strconv.ParseFloat(alpha, 64)
	if err != nil {
		return fmt.Errorf("target %q: %w", s, err)
	}
	r, err := strconv.ParseFloat(re, 64)
	if err != nil {
		return fmt.Errorf("target %q: %w", s, err)
	}
	*l = append(*l, segments.Target{Alpha: a, Re: r})
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Reduction failed", slog.String("error", err.Error()))
		infrastructure.CloseLogFile()
		os.Exit(1)
	}
	infrastructure.CloseLogFile()
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("reducer", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	campaign := fs.String("campaign", "", "campaign name, prefixes the output files")
	workbook := fs.String("workbook", "", "segment workbook, relative to the data directory")
	var targets targetList
	fs.Var(&targets, "target", "representative operating point alpha:re (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *campaign == "" || *workbook == "" {
		return fmt.Errorf("-campaign and -workbook are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return err
	}

	// batch runs export traces only; there is no scrape endpoint
	cfg.Telemetry.MetricExporter = "none"
	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = infrastructure.EnsureTraceID(ctx)
	defer func() {
		if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			infrastructure.LoggerFromContext(ctx).Error("opentelemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return err
	}
	svc, err := services.NewReductionService(cfg, providers.Tracer, metrics, logger)
	if err != nil {
		return err
	}

	red, err := svc.Reduce(ctx, services.Campaign{
		Name:     *campaign,
		Workbook: *workbook,
		Targets:  targets,
		Export:   true,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "reduction %s: %d segments from %s\n",
		red.ID, len(red.Result.Polar), strings.Join(red.Recordings, ", "))
	for _, out := range red.Outputs {
		fmt.Fprintln(stdout, out)
	}
	return nil
}
