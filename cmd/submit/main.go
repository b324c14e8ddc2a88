// Command submit dispatches one submission from the terminal and waits for
// its verdict. With --local the whole pipeline runs in process against an
// in-memory store and channel, with a stub worker that passes every test;
// handy for exercising the dispatch/ingest loop without a broker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/channel"
	"github.com/programme-lv/grader/internal/channel/memchan"
	"github.com/programme-lv/grader/internal/channel/natschan"
	"github.com/programme-lv/grader/internal/dispatch"
	"github.com/programme-lv/grader/internal/environment"
	"github.com/programme-lv/grader/internal/ingest"
	"github.com/programme-lv/grader/internal/problem"
	"github.com/programme-lv/grader/internal/store/memstore"
	"github.com/programme-lv/grader/internal/store/pgstore"
	"github.com/programme-lv/grader/internal/submission"
)

func main() {
	cmd := &cli.Command{
		Name:  "submit",
		Usage: "dispatch one submission for grading",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the TOML policy file"},
			&cli.Int64Flag{Name: "problem", Required: true, Usage: "problem id"},
			&cli.Int64Flag{Name: "user", Required: true, Usage: "acting user id"},
			&cli.StringFlag{Name: "file", Required: true, Usage: "path to the source code"},
			&cli.StringFlag{Name: "lang", Required: true, Usage: "language tag"},
			&cli.BoolFlag{Name: "local", Usage: "run the pipeline in process with a stub worker"},
			&cli.DurationFlag{Name: "wait", Value: 30 * time.Second, Usage: "how long to wait for the verdict"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("submit failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		TimeFormat: time.Kitchen,
		Level:      slog.LevelWarn,
	})))

	code, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	cfg, err := environment.ReadGraderConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if cmd.Bool("local") {
		return runLocal(ctx, cfg, cmd, string(code))
	}
	return runRemote(ctx, cfg, cmd, string(code))
}

func runRemote(ctx context.Context, cfg environment.GraderConfig, cmd *cli.Command, code string) error {
	env := environment.ReadEnvConfig()

	db, err := pgstore.Connect(env.SqlxConnString)
	if err != nil {
		return err
	}
	defer db.Close()
	store := pgstore.New(db)

	nc, err := nats.Connect(env.NatsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()
	ch, err := natschan.New(nc, "submit")
	if err != nil {
		return err
	}
	if err := ch.EnsureTopic(api.TopicGradingRequests); err != nil {
		return err
	}

	d := dispatch.New(store, store, store, ch,
		dispatch.WithAllowedLanguages(cfg.Languages))
	subm, err := d.Dispatch(ctx, cmd.Int64("problem"), cmd.Int64("user"), code, cmd.String("lang"))
	if err != nil {
		return err
	}
	fmt.Printf("submission %d dispatched\n", subm.ID)
	return awaitVerdict(ctx, store, subm.ID, cmd.Duration("wait"))
}

func runLocal(ctx context.Context, cfg environment.GraderConfig, cmd *cli.Command, code string) error {
	store := memstore.New()
	queue := memchan.New(64)

	problemID := cmd.Int64("problem")
	store.AddProblem(problem.Problem{ID: problemID, Title: "local", Difficulty: problem.DifficultyEasy})
	store.AddTestCase(problem.TestCase{
		ProblemID:  problemID,
		Input:      "1",
		Output:     "1",
		Visibility: problem.VisibilityPublic,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stub worker: every test case passes.
	go func() {
		_ = queue.Subscribe(ctx, api.TopicGradingRequests, func(ctx context.Context, del channel.Delivery) {
			var req api.GradingRequest
			if err := json.Unmarshal(del.Body(), &req); err != nil {
				_ = del.Ack()
				return
			}
			res := api.NewGradingResult(req.Submission.ID, int64(len(req.TestCases)))
			body, _ := json.Marshal(res)
			key := fmt.Sprintf("%d", req.Submission.ID)
			_ = queue.Publish(ctx, api.TopicGradingResults, key, body)
			_ = del.Ack()
		})
	}()

	ing := ingest.New(store, queue, ingest.WithScorePolicy(cfg.ScorePolicy()))
	go func() { _ = ing.Run(ctx) }()

	d := dispatch.New(store, store, store, queue,
		dispatch.WithAllowedLanguages(cfg.Languages))
	subm, err := d.Dispatch(ctx, problemID, cmd.Int64("user"), code, cmd.String("lang"))
	if err != nil {
		return err
	}
	fmt.Printf("submission %d dispatched (local)\n", subm.ID)
	return awaitVerdict(ctx, store, subm.ID, cmd.Duration("wait"))
}

func awaitVerdict(ctx context.Context, store submission.Store, id int64, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		subm, err := store.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if subm.Status.Terminal() {
			printVerdict(subm)
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	color.Yellow("submission %d still pending after %s", id, wait)
	return nil
}

func printVerdict(subm *submission.Submission) {
	score := float64(0)
	if subm.Score != nil {
		score = *subm.Score
	}
	switch subm.Status {
	case submission.StatusAccepted:
		color.Green("submission %d accepted, score %.0f", subm.ID, score)
	case submission.StatusRejected:
		color.Red("submission %d rejected, score %.0f", subm.ID, score)
	default:
		color.Yellow("submission %d %s", subm.ID, subm.Status)
	}
}
