package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "s3", c.Storage.Type)
	assert.Equal(t, "games.csv", c.Storage.TrainKey)
	assert.Equal(t, "to_predict.csv", c.Storage.PredictKey)
	assert.Equal(t, 100, c.Features.MinGamesPerTeam)
	assert.Equal(t, []int{1, 5, 10, 15, 20}, c.Features.Windows)
	assert.Len(t, c.Features.Columns, 16)
	assert.Equal(t, []string{"home_team_score", "away_team_score"}, c.Features.Targets)
	assert.Equal(t, "gbm", c.Trainer.Algorithm)
	assert.Equal(t, 0.8, c.Trainer.TrainRatio)
	assert.Equal(t, 0.75, c.Predictor.ValidationRatio)
	assert.Equal(t, 15*time.Minute, c.Predictor.CacheTTL)
	assert.Equal(t, "hoopscast.predictions", c.Kafka.Topics.Predictions)
	assert.NoError(t, c.Validate())
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: local
  dir: /tmp/hoops
features:
  min_games_per_team: 10
  windows: [3]
trainer:
  algorithm: forest
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", c.Storage.Type)
	assert.Equal(t, "/tmp/hoops", c.Storage.Dir)
	assert.Equal(t, "best_model.json.zst", c.Storage.ModelKey)
	assert.Equal(t, 10, c.Features.MinGamesPerTeam)
	assert.Equal(t, []int{3}, c.Features.Windows)
	assert.Equal(t, "forest", c.Trainer.Algorithm)
	assert.Equal(t, 200, c.Trainer.Forest.NEstimators)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"format":      "storage:\n  format: xlsx\n",
		"algorithm":   "trainer:\n  algorithm: svm\n",
		"train ratio": "trainer:\n  train_ratio: 1.5\n",
		"min games":   "features:\n  min_games_per_team: -1\n",
		"kafka":       "kafka:\n  enabled: true\n  brokers: []\n",
		"schedule":    "schedule:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: local\n")
	t.Setenv("S3_BUCKET", "hoops-data")
	t.Setenv("TRAIN_FILE_NAME", "train.csv")
	t.Setenv("MIN_GAMES_PER_TEAM", "0")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "hoops-data", c.Storage.Bucket)
	assert.Equal(t, "train.csv", c.Storage.TrainKey)
	assert.Equal(t, 0, c.Features.MinGamesPerTeam)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.False(t, c.IsLambda)
}

func TestLoadWithEnvBadNumber(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: local\n")
	t.Setenv("MIN_GAMES_PER_TEAM", "many")

	_, err := LoadWithEnv(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_GAMES_PER_TEAM")
}

func TestLoadFromEnvDetectsLambda(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "hoopscast-etl")
	t.Setenv("S3_BUCKET", "hoops-data")
	t.Setenv("ML_MODEL_FILE", "model.json.zst")

	c, err := LoadFromEnv()
	require.NoError(t, err)

	assert.True(t, c.IsLambda)
	assert.Equal(t, "hoops-data", c.Storage.Bucket)
	assert.Equal(t, "model.json.zst", c.Storage.ModelKey)
}
