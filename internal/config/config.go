package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds every recognised runtime setting for the controller. Fields
// are mapstructure-tagged so viper can bind them from file, env, or defaults
// in one pass.
type Config struct {
	// Object storage upload
	UploadEnabled     bool   `mapstructure:"upload_enabled"`
	UploadBucket      string `mapstructure:"upload_bucket"`
	UploadRegion      string `mapstructure:"upload_region"`
	UploadLocation    string `mapstructure:"upload_location"` // court tag, e.g. "gym-3-east"
	DeleteAfterUpload bool   `mapstructure:"delete_after_upload"`
	AutoDeleteSD      bool   `mapstructure:"auto_delete_sd"`

	// Remote GPU encode fleet
	AWSBatchJobQueue             string `mapstructure:"aws_batch_job_queue"`
	AWSBatchJobQueueLarge        string `mapstructure:"aws_batch_job_queue_large"`
	AWSBatchJobDefinition        string `mapstructure:"aws_batch_job_definition"`
	AWSBatchJobDefinitionExtract string `mapstructure:"aws_batch_job_definition_extract"`
	AWSBatchRegion               string `mapstructure:"aws_batch_region"`
	UseAWSGPUTranscode           bool   `mapstructure:"use_aws_gpu_transcode"`

	// Device identity and camera wiring
	JetsonID           string            `mapstructure:"jetson_id"`
	CameraAngleMap     map[string]string `mapstructure:"camera_angle_map"`     // camera name -> angle code
	DeviceManifestFile string            `mapstructure:"device_manifest_file"` // optional YAML alternative to camera_angle_map

	// Static AWS credentials, for edge devices with no attached IAM role.
	// Left blank, the default credential chain (instance profile, shared
	// config, env vars) is used instead.
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSSessionToken    string `mapstructure:"aws_session_token"`

	// Video registry
	UballBackendURL   string `mapstructure:"uball_backend_url"`
	UballAuthEmail    string `mapstructure:"uball_auth_email"`
	UballAuthPassword string `mapstructure:"uball_auth_password"`

	// Catalog (external document database)
	CatalogCredentialsFile string `mapstructure:"catalog_credentials_file"`
	CatalogProjectID       string `mapstructure:"catalog_project_id"`

	// Download tuning (chapter transfer)
	DownloadChunkSizeKB           int `mapstructure:"download_chunk_size_kb"`
	DownloadConnectTimeoutSeconds int `mapstructure:"download_connect_timeout_seconds"`
	DownloadReadTimeoutSeconds    int `mapstructure:"download_read_timeout_seconds"`
	DownloadMaxRetries            int `mapstructure:"download_max_retries"`
	DownloadKeepAliveSeconds      int `mapstructure:"download_keep_alive_seconds"`

	// Ingestion concurrency
	MaxConcurrentIngests int `mapstructure:"max_concurrent_ingests"`
	IngestQueueSize      int `mapstructure:"ingest_queue_size"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogsPath      string `mapstructure:"logs_path"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Run state
	RunStateDir string `mapstructure:"run_state_dir"`
}

func Default() *Config {
	return &Config{
		UploadEnabled:     true,
		DeleteAfterUpload: false,
		AutoDeleteSD:      false,

		AWSBatchJobQueue:             "",
		AWSBatchJobQueueLarge:        "",
		AWSBatchJobDefinition:        "",
		AWSBatchJobDefinitionExtract: "",
		AWSBatchRegion:               "us-east-1",
		UseAWSGPUTranscode:           true,

		CameraAngleMap: map[string]string{},

		DownloadChunkSizeKB:           256,
		DownloadConnectTimeoutSeconds: 10,
		DownloadReadTimeoutSeconds:    60,
		DownloadMaxRetries:            20,
		DownloadKeepAliveSeconds:      30,

		MaxConcurrentIngests: 4,
		IngestQueueSize:      32,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		RunStateDir: "/tmp/pipeline_states",
	}
}

// Load reads configuration from defaults, the config file (if any), and the
// environment, each overriding the one before it, then runs tiered
// validation. Fatal problems block startup; warnings are logged and the
// offending fields are clamped to a safe value in place.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("edgectl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("EDGECTL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// camera_angle_map can also arrive as a raw JSON string via env var,
	// since env vars can't carry a nested map through viper's binding.
	if raw := os.Getenv("EDGECTL_CAMERA_ANGLE_MAP"); raw != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("EDGECTL_CAMERA_ANGLE_MAP is not valid JSON: %w", err)
		}
		cfg.CameraAngleMap = m
	}

	// A device manifest file, if configured, takes precedence over both the
	// base config's camera_angle_map and the env var above: it's the
	// deliberately-provisioned, version-controlled source of truth for a
	// specific court's camera set.
	if cfg.DeviceManifestFile != "" {
		manifest, err := LoadDeviceManifest(cfg.DeviceManifestFile)
		if err != nil {
			return nil, err
		}
		cfg.CameraAngleMap = manifest
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		slog.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			slog.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("upload_enabled", cfg.UploadEnabled)
	viper.Set("upload_bucket", cfg.UploadBucket)
	viper.Set("upload_region", cfg.UploadRegion)
	viper.Set("upload_location", cfg.UploadLocation)
	viper.Set("delete_after_upload", cfg.DeleteAfterUpload)
	viper.Set("auto_delete_sd", cfg.AutoDeleteSD)
	viper.Set("aws_batch_job_queue", cfg.AWSBatchJobQueue)
	viper.Set("aws_batch_job_queue_large", cfg.AWSBatchJobQueueLarge)
	viper.Set("aws_batch_job_definition", cfg.AWSBatchJobDefinition)
	viper.Set("aws_batch_job_definition_extract", cfg.AWSBatchJobDefinitionExtract)
	viper.Set("aws_batch_region", cfg.AWSBatchRegion)
	viper.Set("use_aws_gpu_transcode", cfg.UseAWSGPUTranscode)
	viper.Set("jetson_id", cfg.JetsonID)
	viper.Set("camera_angle_map", cfg.CameraAngleMap)
	viper.Set("uball_backend_url", cfg.UballBackendURL)
	viper.Set("uball_auth_email", cfg.UballAuthEmail)
	viper.Set("uball_auth_password", cfg.UballAuthPassword)
	viper.Set("catalog_credentials_file", cfg.CatalogCredentialsFile)
	viper.Set("catalog_project_id", cfg.CatalogProjectID)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "edgectl.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (carries registry/catalog credentials).
	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific data directory for the controller.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "EdgeCtl", "data")
	case "darwin":
		return "/Library/Application Support/EdgeCtl/data"
	default:
		return "/var/lib/edgectl"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "EdgeCtl")
	case "darwin":
		return "/Library/Application Support/EdgeCtl"
	default:
		return "/etc/edgectl"
	}
}
