package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jun/drivemirror/internal/app"
	"github.com/jun/drivemirror/internal/config"
	"github.com/jun/drivemirror/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"), os.Getenv)
	if err != nil {
		panic(err)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		panic(err)
	}
	defer logging.Sync()

	application, err := app.NewApp(context.Background(), cfg)
	if err != nil {
		logging.L().Fatal("failed to initialize application", zap.Error(err))
	}
	lambda.Start(application.HandleRequest)
}
