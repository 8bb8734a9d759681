package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/ledgerbook/internal/app"
)

func main() {
	// .envがあれば読み込む。本番環境では存在しないので無視してよい。
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
