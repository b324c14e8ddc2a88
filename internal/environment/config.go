package environment

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/programme-lv/grader/internal/submission"
)

// EnvConfig carries the connection endpoints read from the environment.
type EnvConfig struct {
	SqlxConnString string
	NatsURL        string

	// SQS queue urls, used when the channel driver is "sqs".
	RequestQueueUrl string
	ResultQueueUrl  string
}

// ReadEnvConfig loads .env if present and assembles the endpoint config
// from the environment.
func ReadEnvConfig() *EnvConfig {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	result := &EnvConfig{}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASS")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	result.SqlxConnString = fmt.Sprintf(
		`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		dbHost, dbPort, dbUser, dbPass, dbName, dbSslMode)

	result.NatsURL = os.Getenv("NATS_URL")
	result.RequestQueueUrl = os.Getenv("SQS_REQUEST_QUEUE_URL")
	result.ResultQueueUrl = os.Getenv("SQS_RESULT_QUEUE_URL")

	return result
}

// GraderConfig is the TOML policy file: which transport to run on, what
// the channels are called, the scoring rule and the accepted languages.
type GraderConfig struct {
	Channel ChannelConfig `toml:"channel"`
	Scoring ScoringConfig `toml:"scoring"`

	// Languages accepted by the dispatcher; empty accepts any non-blank tag.
	Languages []string `toml:"languages"`
}

type ChannelConfig struct {
	// Driver is one of "nats", "sqs", "mem".
	Driver string `toml:"driver"`
}

type ScoringConfig struct {
	PointsPerTest float64 `toml:"points_per_test"`
}

func DefaultGraderConfig() GraderConfig {
	return GraderConfig{
		Channel: ChannelConfig{
			Driver: "nats",
		},
		Scoring: ScoringConfig{
			PointsPerTest: submission.DefaultPointsPerTest,
		},
	}
}

// ReadGraderConfig parses the TOML policy file, overlaying it on the
// defaults. An empty path returns the defaults unchanged.
func ReadGraderConfig(path string) (GraderConfig, error) {
	cfg := DefaultGraderConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Scoring.PointsPerTest <= 0 {
		return cfg, fmt.Errorf("points_per_test must be positive, got %v", cfg.Scoring.PointsPerTest)
	}
	return cfg, nil
}

func (c GraderConfig) ScorePolicy() submission.ScorePolicy {
	return submission.ScorePolicy{PointsPerTest: c.Scoring.PointsPerTest}
}
