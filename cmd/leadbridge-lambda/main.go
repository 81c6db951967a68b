// Command leadbridge-lambda serves the lead workflow on AWS Lambda behind API Gateway.
// Configuration comes from LEADBRIDGE_ environment variables only.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/florianilch/leadbridge/internal/app"
	"github.com/florianilch/leadbridge/internal/observability"
)

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig("", nil, os.Environ)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Lambda forwards stdout to CloudWatch
	if _, err := observability.Instrument(ctx, cfg.LogLevel, string(app.LogFormatJSON), observability.Options{Writer: os.Stdout, Exporter: cfg.LogExporter}); err != nil {
		slog.Error("failed to set up observability layer", "error", err)
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	handler, err := application.LambdaHandler(ctx)
	if err != nil {
		slog.Error("failed to mint access token", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.HandleRequest)
}
