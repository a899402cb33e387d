package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/geisspaul/MoProMa-Auswertung/internal/app"
	"github.com/geisspaul/MoProMa-Auswertung/internal/infrastructure"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults and MOPROMA_* environment otherwise)")
	flag.Parse()

	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = application.Run()
	infrastructure.CloseLogFile()
	if err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
