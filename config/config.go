package config

import (
	"database/sql"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"

	"adgen-jobs/constant"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Runner      Runner        `yaml:"runner"`
	Jobs        JobStore      `yaml:"jobs"`
	Assets      Assets        `yaml:"assets"`
	Generator   Generator     `yaml:"generator"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type Runner struct {
	MaxConcurrency  int           `yaml:"max_concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RecoverOnStart  bool          `yaml:"recover_on_start"`
}

type JobStore struct {
	Driver constant.StorageDriver `yaml:"driver"`
	Path   string                 `yaml:"path"`
}

type Assets struct {
	Path string `yaml:"path"`
}

type Generator struct {
	Provider     string        `yaml:"provider"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	ImageModel   string        `yaml:"image_model"`
	VideoModel   string        `yaml:"video_model"`
	PollInterval time.Duration `yaml:"poll_interval"`
	VideoTimeout time.Duration `yaml:"video_timeout"`
}

type RabbitMQ struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func setDefaults() {
	viper.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	viper.SetDefault("app.host", "localhost:9000")
	viper.SetDefault("app.protocol", "http")
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.workers", 2)
	viper.SetDefault("runner.max_concurrency", 4)
	viper.SetDefault("runner.shutdown_timeout", 30*time.Second)
	viper.SetDefault("runner.recover_on_start", true)
	viper.SetDefault("storage.driver", string(constant.StorageDriverFile))
	viper.SetDefault("storage.path", "jobs.json")
	viper.SetDefault("assets.path", "output")
	viper.SetDefault("generator.provider", "gemini")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	viper.SetDefault("gemini.video_model", "veo-3.1-generate-preview")
	viper.SetDefault("gemini.poll_interval", 10*time.Second)
	viper.SetDefault("gemini.video_timeout", 10*time.Minute)
	viper.SetDefault("minio.enabled", false)
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq_port", 5672)
	viper.SetDefault("rabbitmq_kind", "direct")
}

// Load reads .env, then config.yaml from path when present, then the
// environment. Only the resources the selected drivers need are opened.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	setDefaults()
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Runner: Runner{
			MaxConcurrency:  viper.GetInt("runner.max_concurrency"),
			ShutdownTimeout: viper.GetDuration("runner.shutdown_timeout"),
			RecoverOnStart:  viper.GetBool("runner.recover_on_start"),
		},
		Jobs: JobStore{
			Driver: constant.StorageDriver(viper.GetString("storage.driver")),
			Path:   viper.GetString("storage.path"),
		},
		Assets: Assets{
			Path: viper.GetString("assets.path"),
		},
		Generator: Generator{
			Provider:     viper.GetString("generator.provider"),
			APIKey:       firstNonEmpty(viper.GetString("gemini.api_key"), viper.GetString("GOOGLE_API_KEY")),
			BaseURL:      viper.GetString("gemini.base_url"),
			ImageModel:   viper.GetString("gemini.image_model"),
			VideoModel:   viper.GetString("gemini.video_model"),
			PollInterval: viper.GetDuration("gemini.poll_interval"),
			VideoTimeout: viper.GetDuration("gemini.video_timeout"),
		},
		Queue: &RabbitMQ{
			Enabled: viper.GetBool("rabbitmq.enabled"),
			Host:    viper.GetString("rabbitmq_host"),
			Port:    viper.GetInt("rabbitmq_port"),
			User:    viper.GetString("rabbitmq_user"),
			Pass:    viper.GetString("rabbitmq_pass"),
			Kind:    viper.GetString("rabbitmq_kind"),
		},
	}

	if cfg.Jobs.Driver == constant.StorageDriverPostgres {
		db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
		if err != nil {
			return nil, err
		}
		cfg.DB = db
	}

	if viper.GetBool("minio.enabled") {
		minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
		cfg.Storage = minioClient
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
