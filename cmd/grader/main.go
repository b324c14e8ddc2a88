package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/channel"
	"github.com/programme-lv/grader/internal/channel/natschan"
	"github.com/programme-lv/grader/internal/channel/sqschan"
	"github.com/programme-lv/grader/internal/environment"
	"github.com/programme-lv/grader/internal/ingest"
	"github.com/programme-lv/grader/internal/store/pgstore"
)

func main() {
	cmd := &cli.Command{
		Name:  "grader",
		Usage: "runs the grading result ingestor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the TOML policy file",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("grader exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		TimeFormat: time.Kitchen,
	})))

	env := environment.ReadEnvConfig()
	cfg, err := environment.ReadGraderConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := pgstore.Connect(env.SqlxConnString)
	if err != nil {
		return err
	}
	defer db.Close()
	store := pgstore.New(db)

	sub, err := newSubscriber(ctx, cfg, env)
	if err != nil {
		return err
	}

	ing := ingest.New(store, sub, ingest.WithScorePolicy(cfg.ScorePolicy()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ing.Run(ctx) })
	return g.Wait()
}

func newSubscriber(ctx context.Context, cfg environment.GraderConfig, env *environment.EnvConfig) (channel.Subscriber, error) {
	switch cfg.Channel.Driver {
	case "nats":
		nc, err := nats.Connect(env.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		ch, err := natschan.New(nc, "grader")
		if err != nil {
			return nil, err
		}
		for _, topic := range []string{api.TopicGradingRequests, api.TopicGradingResults} {
			if err := ch.EnsureTopic(topic); err != nil {
				return nil, err
			}
		}
		return ch, nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return sqschan.New(sqs.NewFromConfig(awsCfg), map[string]string{
			api.TopicGradingRequests: env.RequestQueueUrl,
			api.TopicGradingResults:  env.ResultQueueUrl,
		}), nil
	case "mem":
		return nil, fmt.Errorf("the mem driver only works inside the submit tool's local mode")
	default:
		return nil, fmt.Errorf("unknown channel driver %q", cfg.Channel.Driver)
	}
}
