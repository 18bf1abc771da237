// cmd/lambda/main.go
//
// Signup service – serverless entry point.
//
// Same wiring as cmd/web, but requests arrive as API Gateway proxy events.
// The handler is built once per cold start and reused across invocations;
// logs go to stdout for the platform to collect.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/yanizio/waitlist/internal/app"
	"github.com/yanizio/waitlist/internal/config"
	"github.com/yanizio/waitlist/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logOut, err := logger.New(logger.Options{Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	a, err := app.Build(context.Background(), cfg, logOut, app.Options{})
	if err != nil {
		logOut.Fatalw("build signup handler", "err", err)
	}

	lambda.Start(a.Handler.Lambda)
}
