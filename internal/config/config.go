package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Endpoint string `mapstructure:"endpoint"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ProvidersConfig struct {
	Prediction PredictionConfig `mapstructure:"prediction"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
}

// PredictionConfig points at the AI gateway fronting the prediction-style
// provider. The gateway embeds the result URL in the status response.
type PredictionConfig struct {
	GatewayURL    string        `mapstructure:"gateway_url"`
	StatusTimeout time.Duration `mapstructure:"status_timeout"`
}

// WorkflowConfig points at the workflow-graph provider. Results are fetched
// with a second call that may report the task as still running.
type WorkflowConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	APIKey               string        `mapstructure:"api_key"`
	SingleItemWorkflowID string        `mapstructure:"single_item_workflow_id"`
	TopBottomWorkflowID  string        `mapstructure:"top_bottom_workflow_id"`
	NodeUserPhoto        string        `mapstructure:"node_user_photo"`
	NodeTopClothes       string        `mapstructure:"node_top_clothes"`
	NodeBottomClothes    string        `mapstructure:"node_bottom_clothes"`
	WebhookURL           string        `mapstructure:"webhook_url"`
	StatusTimeout        time.Duration `mapstructure:"status_timeout"`
	TransferTimeout      time.Duration `mapstructure:"transfer_timeout"`
	QueuePollInterval    time.Duration `mapstructure:"queue_poll_interval"`
	QueuePollAttempts    int           `mapstructure:"queue_poll_attempts"`
	SubmitRetryDelay     time.Duration `mapstructure:"submit_retry_delay"`
	SubmitMaxRetries     int           `mapstructure:"submit_max_retries"`
}

type StorageConfig struct {
	IPFSAPIURL     string `mapstructure:"ipfs_api_url"`
	IPFSGatewayURL string `mapstructure:"ipfs_gateway_url"`
}

type SweepConfig struct {
	Schedule  string        `mapstructure:"schedule"`
	Window    time.Duration `mapstructure:"window"`
	BatchSize int           `mapstructure:"batch_size"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type TelemetryConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	ServiceName   string              `mapstructure:"service_name"`
	OTELCollector OTELCollectorConfig `mapstructure:"otel_collector"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type OTELCollectorConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MetricsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Set default values
	if config.Server.Endpoint == "" {
		config.Server.Endpoint = "/api"
	}
	if config.Providers.Prediction.StatusTimeout == 0 {
		config.Providers.Prediction.StatusTimeout = 30 * time.Second
	}
	if config.Providers.Workflow.StatusTimeout == 0 {
		config.Providers.Workflow.StatusTimeout = 30 * time.Second
	}
	if config.Providers.Workflow.TransferTimeout == 0 {
		config.Providers.Workflow.TransferTimeout = 120 * time.Second
	}
	if config.Providers.Workflow.QueuePollInterval == 0 {
		config.Providers.Workflow.QueuePollInterval = 2 * time.Second
	}
	if config.Providers.Workflow.QueuePollAttempts == 0 {
		config.Providers.Workflow.QueuePollAttempts = 10
	}
	if config.Providers.Workflow.SubmitRetryDelay == 0 {
		config.Providers.Workflow.SubmitRetryDelay = 3 * time.Second
	}
	if config.Providers.Workflow.SubmitMaxRetries == 0 {
		config.Providers.Workflow.SubmitMaxRetries = 5
	}
	if config.Sweep.Schedule == "" {
		config.Sweep.Schedule = "@every 5m"
	}
	if config.Sweep.Window == 0 {
		config.Sweep.Window = time.Hour
	}
	if config.Sweep.BatchSize == 0 {
		config.Sweep.BatchSize = 50
	}
	if config.Telemetry.Metrics.Interval == 0 {
		config.Telemetry.Metrics.Interval = 15 * time.Second
	}

	return &config, nil
}
