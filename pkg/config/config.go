package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once at process start and passed by value (or by pointer
// that nobody writes through) into every stage.
type Config struct {
	Environment string `yaml:"environment" default:"local" validate:"required"`
	IsLambda    bool   `yaml:"-"`

	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Storage    StorageConfig    `yaml:"storage"`
	Source     SourceConfig     `yaml:"source"`
	Features   FeaturesConfig   `yaml:"features"`
	Trainer    TrainerConfig    `yaml:"trainer"`
	Predictor  PredictorConfig  `yaml:"predictor"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
}

type LogConfig struct {
	Level   string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format  string        `yaml:"format" default:"json" validate:"oneof=json console"`
	Output  string        `yaml:"output" default:"stdout"`
	Collect bool          `yaml:"collect"`
	Flush   time.Duration `yaml:"flush_interval" default:"30s"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// StorageConfig locates the object store holding the training table, the
// prediction table and the model artifact.
type StorageConfig struct {
	Type         string `yaml:"type" default:"s3" validate:"oneof=s3 local"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region" default:"us-east-1"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Dir          string `yaml:"dir" default:"data"`
	Format       string `yaml:"format" default:"csv" validate:"oneof=csv parquet"`
	TrainKey     string `yaml:"train_key" default:"games.csv" validate:"required"`
	PredictKey   string `yaml:"predict_key" default:"to_predict.csv" validate:"required"`
	ModelKey     string `yaml:"model_key" default:"best_model.json.zst" validate:"required"`
}

// SourceConfig describes the upstream games API.
type SourceConfig struct {
	BaseURL           string        `yaml:"base_url" default:"https://api.balldontlie.io/v1/games" validate:"required,url"`
	APIKey            string        `yaml:"api_key"`
	PerPage           int           `yaml:"per_page" default:"100" validate:"min=1,max=100"`
	StartDate         string        `yaml:"start_date"`
	EndDate           string        `yaml:"end_date"`
	LookbackDays      int           `yaml:"lookback_days" default:"730" validate:"min=1"`
	Timeout           time.Duration `yaml:"timeout" default:"30s"`
	RequestsPerMinute int           `yaml:"requests_per_minute" default:"60" validate:"min=0"`
}

type FeaturesConfig struct {
	Selected        []string `yaml:"selected"`
	Windows         []int    `yaml:"windows" validate:"required,dive,min=1"`
	RollingColumns  []string `yaml:"rolling_columns"`
	MinGamesPerTeam int      `yaml:"min_games_per_team" default:"100" validate:"min=0"`
	Columns         []string `yaml:"columns" validate:"required"`
	Targets         []string `yaml:"targets" validate:"required"`
	PredictLimit    int      `yaml:"predict_limit" validate:"min=0"`
}

// SetDefaults fills list settings that struct tags cannot express cleanly.
func (f *FeaturesConfig) SetDefaults() {
	if len(f.Selected) == 0 {
		f.Selected = []string{
			"id", "date",
			"home_team_abbreviation", "visitor_team_abbreviation",
			"home_team_score", "visitor_team_score",
		}
	}
	if len(f.Windows) == 0 {
		f.Windows = []int{1, 5, 10, 15, 20}
	}
	if len(f.RollingColumns) == 0 {
		f.RollingColumns = []string{"team_score", "opponent_score"}
	}
	if len(f.Columns) == 0 {
		for _, side := range []string{"home", "away"} {
			for _, w := range []int{5, 10, 15, 20} {
				f.Columns = append(f.Columns,
					fmt.Sprintf("%s_avg_last_%d_team_score", side, w),
					fmt.Sprintf("%s_avg_last_%d_opponent_score", side, w),
				)
			}
		}
	}
	if len(f.Targets) == 0 {
		f.Targets = []string{"home_team_score", "away_team_score"}
	}
}

type GBMConfig struct {
	NEstimators     int     `yaml:"n_estimators" default:"300" validate:"min=1"`
	LearningRate    float64 `yaml:"learning_rate" default:"0.05" validate:"gt=0,lte=1"`
	MaxDepth        int     `yaml:"max_depth" default:"4" validate:"min=1"`
	Subsample       float64 `yaml:"subsample" default:"0.8" validate:"gt=0,lte=1"`
	ColsampleByTree float64 `yaml:"colsample_bytree" default:"0.8" validate:"gt=0,lte=1"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf" default:"5" validate:"min=1"`
}

type ForestConfig struct {
	NEstimators    int     `yaml:"n_estimators" default:"200" validate:"min=1"`
	MaxDepth       int     `yaml:"max_depth" default:"10" validate:"min=1"`
	MaxFeatures    float64 `yaml:"max_features" default:"0.5" validate:"gt=0,lte=1"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf" default:"3" validate:"min=1"`
}

type SearchConfig struct {
	Enabled       bool  `yaml:"enabled"`
	Calls         int   `yaml:"calls" default:"20" validate:"min=1"`
	InitialPoints int   `yaml:"initial_points" default:"5" validate:"min=1"`
	Candidates    int   `yaml:"candidates" default:"500" validate:"min=1"`
	Seed          int64 `yaml:"seed"`
}

type TrainerConfig struct {
	Algorithm  string       `yaml:"algorithm" default:"gbm" validate:"oneof=gbm forest"`
	TrainRatio float64      `yaml:"train_ratio" default:"0.8" validate:"gt=0,lt=1"`
	Seed       int64        `yaml:"seed"`
	GBM        GBMConfig    `yaml:"gbm"`
	Forest     ForestConfig `yaml:"forest"`
	Search     SearchConfig `yaml:"search"`
}

type PredictorConfig struct {
	Validate        bool          `yaml:"validate" default:"true"`
	ValidationRatio float64       `yaml:"validation_ratio" default:"0.75" validate:"gt=0,lt=1"`
	CacheTTL        time.Duration `yaml:"cache_ttl" default:"15m"`
}

type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	ETL     string `yaml:"etl" default:"0 10 * * *"`
	Train   string `yaml:"train" default:"30 10 * * 1"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topics  struct {
		Predictions string `yaml:"predictions" default:"hoopscast.predictions"`
		Events      string `yaml:"events" default:"hoopscast.events"`
		Logs        string `yaml:"logs" default:"hoopscast.logs"`
	} `yaml:"topics"`
	RequiredAcks int    `yaml:"required_acks" default:"-1"`
	Compression  string `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"hoopscast-archiver"`
		Workers    int           `yaml:"workers" default:"2" validate:"min=1"`
		BufferSize int           `yaml:"buffer_size" default:"100" validate:"min=1"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"hoopscast.predictions.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"hoopscast"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"hoopscast"`
}

type QueueConfig struct {
	Name         string        `yaml:"name" default:"pipeline"`
	Workers      int           `yaml:"workers" default:"1" validate:"min=1"`
	MaxRetries   int           `yaml:"max_retries" default:"2"`
	RetryBackoff time.Duration `yaml:"retry_backoff" default:"1m"`
	LockTTL      time.Duration `yaml:"lock_ttl" default:"30m"`
}

var validate = validator.New()

// Default returns a configuration populated only from defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Settings missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadFromEnv builds the config from defaults and the process environment,
// reading a .env file first when one exists. Lambda functions use this.
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.Split(v, ",")
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORAGE_TYPE", &c.Storage.Type)
	str("S3_BUCKET", &c.Storage.Bucket)
	str("AWS_REGION", &c.Storage.Region)
	str("S3_ENDPOINT", &c.Storage.Endpoint)
	str("DATA_DIR", &c.Storage.Dir)
	str("TRAIN_FILE_NAME", &c.Storage.TrainKey)
	str("PREDICT_FILE_NAME", &c.Storage.PredictKey)
	str("ML_MODEL_FILE", &c.Storage.ModelKey)
	str("BASE_NBA_URL", &c.Source.BaseURL)
	str("NBA_API_KEY", &c.Source.APIKey)
	str("START_DATE", &c.Source.StartDate)
	str("END_DATE", &c.Source.EndDate)
	str("REDIS_HOST", &c.Redis.Host)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)

	if v := os.Getenv("MIN_GAMES_PER_TEAM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MIN_GAMES_PER_TEAM: %w", err)
		}
		c.Features.MinGamesPerTeam = n
	}
	if v := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); v != "" {
		c.IsLambda = true
	}
	return nil
}

// Validate checks struct rules plus the few cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Schedule.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("schedule requires redis for the job queue")
	}
	return nil
}
