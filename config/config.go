/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "8000"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"RINGFLOW_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"RINGFLOW_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"RINGFLOW_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"RINGFLOW_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"RINGFLOW_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"RINGFLOW_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"RINGFLOW_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"RINGFLOW_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"RINGFLOW_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"RINGFLOW_TYPESENSE_DNS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"RINGFLOW_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"RINGFLOW_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"RINGFLOW_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// QueueConfig names the asynq queues the workers consume and the monitoring
// port asynqmon binds to.
type QueueConfig struct {
	BatchQueue       string `json:"batch_queue" envconfig:"RINGFLOW_QUEUE_BATCH"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"RINGFLOW_QUEUE_WEBHOOK"`
	IndexQueue       string `json:"index_queue" envconfig:"RINGFLOW_QUEUE_INDEX"`
	RecoveryQueue    string `json:"recovery_queue" envconfig:"RINGFLOW_QUEUE_RECOVERY"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"RINGFLOW_QUEUE_MONITORING_PORT"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"RINGFLOW_QUEUE_MAX_RETRY_ATTEMPTS"`
}

// CallingHoursConfig bounds the daily window in which batches are allowed to
// dial out. End may be numerically before start, in which case the window
// spans midnight.
type CallingHoursConfig struct {
	StartHour   int `json:"start_hour" envconfig:"RINGFLOW_CALLING_START_HOUR"`
	StartMinute int `json:"start_minute" envconfig:"RINGFLOW_CALLING_START_MINUTE"`
	EndHour     int `json:"end_hour" envconfig:"RINGFLOW_CALLING_END_HOUR"`
	EndMinute   int `json:"end_minute" envconfig:"RINGFLOW_CALLING_END_MINUTE"`
}

// CampaignConfig carries the dialing policy: selection page size, concurrency
// ceiling, retry budget, scheduling interval and pacing.
type CampaignConfig struct {
	QueryLimit          int                `json:"query_limit" envconfig:"RINGFLOW_CAMPAIGN_QUERY_LIMIT"`
	MaxConcurrentCalls  int                `json:"max_concurrent_calls" envconfig:"RINGFLOW_CAMPAIGN_MAX_CONCURRENT_CALLS"`
	MaxRetries          int                `json:"max_retries" envconfig:"RINGFLOW_CAMPAIGN_MAX_RETRIES"`
	IntervalMinutes     int                `json:"interval_minutes" envconfig:"RINGFLOW_CAMPAIGN_INTERVAL_MINUTES"`
	PacingDelayMs       int                `json:"pacing_delay_ms" envconfig:"RINGFLOW_CAMPAIGN_PACING_DELAY_MS"`
	StaleCallingMinutes int                `json:"stale_calling_minutes" envconfig:"RINGFLOW_CAMPAIGN_STALE_CALLING_MINUTES"`
	Timezone            string             `json:"timezone" envconfig:"RINGFLOW_CAMPAIGN_TIMEZONE"`
	CallingHours        CallingHoursConfig `json:"calling_hours"`
}

// Location resolves the campaign timezone. Unknown zones fall back to UTC
// with a warning so a bad deploy never silently shifts the calling window to
// the host's local clock.
func (c CampaignConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown timezone %q, falling back to UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

// OtelGrafanaCloud holds the OTLP exporter settings pushed into the
// environment for the OTel SDK to pick up.
type OtelGrafanaCloud struct {
	OtelExporterOtlpProtocol string `json:"otel_exporter_otlp_protocol" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	OtelExporterOtlpEndpoint string `json:"otel_exporter_otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpHeaders  string `json:"otel_exporter_otlp_headers" envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`
}

// VoiceProviderConfig points at the external call-initiation API.
type VoiceProviderConfig struct {
	BaseUrl       string `json:"base_url" envconfig:"RINGFLOW_VOICE_BASE_URL"`
	ApiKey        string `json:"api_key" envconfig:"RINGFLOW_VOICE_API_KEY"`
	AgentId       string `json:"agent_id" envconfig:"RINGFLOW_VOICE_AGENT_ID"`
	FromNumber    string `json:"from_number" envconfig:"RINGFLOW_VOICE_FROM_NUMBER"`
	WebhookSecret string `json:"webhook_secret" envconfig:"RINGFLOW_VOICE_WEBHOOK_SECRET"`
}

type Configuration struct {
	ProjectName        string              `json:"project_name" envconfig:"RINGFLOW_PROJECT_NAME"`
	BackupDir          string              `json:"backup_dir" envconfig:"RINGFLOW_BACKUP_DIR"`
	AwsAccessKeyId     string              `json:"aws_access_key_id"`
	S3Endpoint         string              `json:"s3_endpoint"`
	AwsSecretAccessKey string              `json:"aws_secret_access_key"`
	S3BucketName       string              `json:"s3_bucket_name"`
	S3Region           string              `json:"s3_region"`
	EnableTelemetry    bool                `json:"enable_telemetry" envconfig:"RINGFLOW_ENABLE_TELEMETRY"`
	Server             ServerConfig        `json:"server"`
	DataSource         DataSourceConfig    `json:"data_source"`
	Redis              RedisConfig         `json:"redis"`
	TypeSense          TypeSenseConfig     `json:"typesense"`
	TypeSenseKey       string              `json:"type_sense_key"`
	Notification       Notification        `json:"notification"`
	RateLimit          RateLimitConfig     `json:"rate_limit"`
	Queue              QueueConfig         `json:"queue"`
	Campaign           CampaignConfig      `json:"campaign"`
	VoiceProvider      VoiceProviderConfig `json:"voice_provider"`
	OtelGrafanaCloud   OtelGrafanaCloud    `json:"otel_grafana_cloud"`
}

// SetGrafanaExporterEnvs exports the configured OTLP settings as environment
// variables so the OTel exporters can read them at setup time.
func SetGrafanaExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", cnf.OtelGrafanaCloud.OtelExporterOtlpProtocol); err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cnf.OtelGrafanaCloud.OtelExporterOtlpEndpoint); err != nil {
		return err
	}
	return os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", cnf.OtelGrafanaCloud.OtelExporterOtlpHeaders)
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("ringflow", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called ringflow.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Ringflow Server"
	}

	if cnf.TypeSense.Dns == "" {
		cnf.TypeSense.Dns = "http://typesense:8108"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	cnf.applyQueueDefaults()
	cnf.applyCampaignDefaults()

	return nil
}

func (cnf *Configuration) applyQueueDefaults() {
	if cnf.Queue.BatchQueue == "" {
		cnf.Queue.BatchQueue = "batch_queue"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "webhook_queue"
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = "index_queue"
	}
	if cnf.Queue.RecoveryQueue == "" {
		cnf.Queue.RecoveryQueue = "recovery_queue"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
}

func (cnf *Configuration) applyCampaignDefaults() {
	if cnf.Campaign.QueryLimit <= 0 {
		cnf.Campaign.QueryLimit = 50
	}
	if cnf.Campaign.MaxConcurrentCalls <= 0 {
		cnf.Campaign.MaxConcurrentCalls = 15
	}
	if cnf.Campaign.MaxRetries <= 0 {
		cnf.Campaign.MaxRetries = 3
	}
	if cnf.Campaign.IntervalMinutes <= 0 {
		cnf.Campaign.IntervalMinutes = 10
	}
	if cnf.Campaign.PacingDelayMs <= 0 {
		cnf.Campaign.PacingDelayMs = 500
	}
	if cnf.Campaign.StaleCallingMinutes <= 0 {
		cnf.Campaign.StaleCallingMinutes = 120
	}
	if cnf.Campaign.Timezone == "" {
		cnf.Campaign.Timezone = "Asia/Kolkata"
	}
	if cnf.Campaign.CallingHours.StartHour == 0 && cnf.Campaign.CallingHours.EndHour == 0 {
		cnf.Campaign.CallingHours = CallingHoursConfig{StartHour: 9, StartMinute: 0, EndHour: 17, EndMinute: 30}
		log.Println("Warning: Calling hours not specified. Defaulting to 09:00-17:30.")
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyQueueDefaults()
	mockConfig.applyCampaignDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
