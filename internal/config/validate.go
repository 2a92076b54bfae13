package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validAngleCodes = map[string]bool{
	"FL":  true,
	"FR":  true,
	"NL":  true,
	"NR":  true,
	"UNK": true,
}

// ValidationResult separates problems that must block startup (Fatals) from
// ones that were auto-corrected and merely logged (Warnings).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// a flat list to print.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Problems that would
// make the controller unsafe to run at all (missing bucket with uploads
// enabled, malformed angle codes) are fatal. Problems with a safe default
// (out-of-range timeouts, retry counts) are clamped in place and reported as
// warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult
	fatal := func(err error) { result.Fatals = append(result.Fatals, err) }
	warn := func(err error) { result.Warnings = append(result.Warnings, err) }

	if c.UploadEnabled && c.UploadBucket == "" {
		fatal(fmt.Errorf("upload_bucket is required when upload_enabled is true"))
	}

	if c.UseAWSGPUTranscode {
		if c.AWSBatchJobQueue == "" {
			fatal(fmt.Errorf("aws_batch_job_queue is required when use_aws_gpu_transcode is true"))
		}
		if c.AWSBatchJobDefinition == "" {
			fatal(fmt.Errorf("aws_batch_job_definition is required when use_aws_gpu_transcode is true"))
		}
	}

	if c.JetsonID == "" {
		fatal(fmt.Errorf("jetson_id must be set to identify this device"))
	}

	for camera, angle := range c.CameraAngleMap {
		if !validAngleCodes[strings.ToUpper(angle)] {
			fatal(fmt.Errorf("camera_angle_map[%q] = %q is not a recognised angle code (use FL, FR, NL, NR, or UNK)", camera, angle))
		}
	}

	if c.UballBackendURL != "" {
		if !strings.HasPrefix(c.UballBackendURL, "http://") && !strings.HasPrefix(c.UballBackendURL, "https://") {
			fatal(fmt.Errorf("uball_backend_url %q must start with http:// or https://", c.UballBackendURL))
		}
	}

	if c.CatalogCredentialsFile == "" {
		fatal(fmt.Errorf("catalog_credentials_file is required"))
	}

	// Clamp download tuning to a safe range rather than failing startup.
	if c.DownloadChunkSizeKB < 32 {
		warn(fmt.Errorf("download_chunk_size_kb %d is below minimum 32, clamping", c.DownloadChunkSizeKB))
		c.DownloadChunkSizeKB = 32
	} else if c.DownloadChunkSizeKB > 8192 {
		warn(fmt.Errorf("download_chunk_size_kb %d exceeds maximum 8192, clamping", c.DownloadChunkSizeKB))
		c.DownloadChunkSizeKB = 8192
	}

	if c.DownloadConnectTimeoutSeconds < 1 {
		warn(fmt.Errorf("download_connect_timeout_seconds %d is below minimum 1, clamping", c.DownloadConnectTimeoutSeconds))
		c.DownloadConnectTimeoutSeconds = 1
	} else if c.DownloadConnectTimeoutSeconds > 300 {
		warn(fmt.Errorf("download_connect_timeout_seconds %d exceeds maximum 300, clamping", c.DownloadConnectTimeoutSeconds))
		c.DownloadConnectTimeoutSeconds = 300
	}

	if c.DownloadReadTimeoutSeconds < 1 {
		warn(fmt.Errorf("download_read_timeout_seconds %d is below minimum 1, clamping", c.DownloadReadTimeoutSeconds))
		c.DownloadReadTimeoutSeconds = 1
	} else if c.DownloadReadTimeoutSeconds > 900 {
		warn(fmt.Errorf("download_read_timeout_seconds %d exceeds maximum 900, clamping", c.DownloadReadTimeoutSeconds))
		c.DownloadReadTimeoutSeconds = 900
	}

	if c.DownloadMaxRetries < 0 {
		warn(fmt.Errorf("download_max_retries %d is below minimum 0, clamping", c.DownloadMaxRetries))
		c.DownloadMaxRetries = 0
	} else if c.DownloadMaxRetries > 100 {
		warn(fmt.Errorf("download_max_retries %d exceeds maximum 100, clamping", c.DownloadMaxRetries))
		c.DownloadMaxRetries = 100
	}

	if c.DownloadKeepAliveSeconds < 5 {
		warn(fmt.Errorf("download_keep_alive_seconds %d is below minimum 5, clamping", c.DownloadKeepAliveSeconds))
		c.DownloadKeepAliveSeconds = 5
	} else if c.DownloadKeepAliveSeconds > 120 {
		warn(fmt.Errorf("download_keep_alive_seconds %d exceeds maximum 120, clamping", c.DownloadKeepAliveSeconds))
		c.DownloadKeepAliveSeconds = 120
	}

	if c.MaxConcurrentIngests < 1 {
		warn(fmt.Errorf("max_concurrent_ingests %d is below minimum 1, clamping", c.MaxConcurrentIngests))
		c.MaxConcurrentIngests = 1
	} else if c.MaxConcurrentIngests > 32 {
		warn(fmt.Errorf("max_concurrent_ingests %d exceeds maximum 32, clamping", c.MaxConcurrentIngests))
		c.MaxConcurrentIngests = 32
	}

	if c.IngestQueueSize < 1 {
		warn(fmt.Errorf("ingest_queue_size %d is below minimum 1, clamping", c.IngestQueueSize))
		c.IngestQueueSize = 1
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn(fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn(fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	return result
}
