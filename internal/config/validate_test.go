package config

import (
	"fmt"
	"testing"
)

func validBase() *Config {
	cfg := Default()
	cfg.JetsonID = "court-3-jetson"
	cfg.CatalogCredentialsFile = "/etc/edgectl/catalog-sa.json"
	cfg.UploadBucket = "court-raw-chapters"
	cfg.AWSBatchJobQueue = "gpu-encode-queue"
	cfg.AWSBatchJobDefinition = "gpu-encode-job"
	return cfg
}

func TestValidateTieredMissingBucketIsFatalWhenUploadEnabled(t *testing.T) {
	cfg := validBase()
	cfg.UploadBucket = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("missing upload_bucket with upload_enabled should be fatal")
	}
}

func TestValidateTieredMissingJetsonIDIsFatal(t *testing.T) {
	cfg := validBase()
	cfg.JetsonID = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("missing jetson_id should be fatal")
	}
}

func TestValidateTieredMissingCatalogCredentialsIsFatal(t *testing.T) {
	cfg := validBase()
	cfg.CatalogCredentialsFile = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("missing catalog_credentials_file should be fatal")
	}
}

func TestValidateTieredUnknownAngleCodeIsFatal(t *testing.T) {
	cfg := validBase()
	cfg.CameraAngleMap = map[string]string{"baseline-cam": "CENTER"}
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unrecognised angle code should be fatal")
	}
}

func TestValidateTieredMissingBatchSettingsIsFatalWhenGPUTranscodeEnabled(t *testing.T) {
	cfg := validBase()
	cfg.UseAWSGPUTranscode = true
	cfg.AWSBatchJobQueue = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("missing aws_batch_job_queue should be fatal when use_aws_gpu_transcode is true")
	}
}

func TestValidateTieredChunkSizeClampingIsWarning(t *testing.T) {
	cfg := validBase()
	cfg.DownloadChunkSizeKB = 1
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped chunk size should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped chunk size")
	}
	if cfg.DownloadChunkSizeKB != 32 {
		t.Fatalf("DownloadChunkSizeKB = %d, want 32 (clamped)", cfg.DownloadChunkSizeKB)
	}
}

func TestValidateTieredKeepAliveClampingIsWarning(t *testing.T) {
	cfg := validBase()
	cfg.DownloadKeepAliveSeconds = 9999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped keep-alive should be warning: %v", result.Fatals)
	}
	if cfg.DownloadKeepAliveSeconds != 120 {
		t.Fatalf("DownloadKeepAliveSeconds = %d, want 120", cfg.DownloadKeepAliveSeconds)
	}
}

func TestValidateTieredIngestConcurrencyClamping(t *testing.T) {
	cfg := validBase()
	cfg.MaxConcurrentIngests = 0
	cfg.IngestQueueSize = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped ingest concurrency should be warning: %v", result.Fatals)
	}
	if cfg.MaxConcurrentIngests != 1 {
		t.Fatalf("MaxConcurrentIngests = %d, want 1", cfg.MaxConcurrentIngests)
	}
	if cfg.IngestQueueSize != 1 {
		t.Fatalf("IngestQueueSize = %d, want 1", cfg.IngestQueueSize)
	}
}

func TestValidateTieredUnknownLogLevelIsWarningAndDefaulted(t *testing.T) {
	cfg := validBase()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want default info", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarningAndDefaulted(t *testing.T) {
	cfg := validBase()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("LogFormat = %q, want default text", cfg.LogFormat)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := validBase()
	cfg.UploadBucket = ""       // fatal
	cfg.DownloadChunkSizeKB = 1 // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := validBase()
	cfg.CameraAngleMap = map[string]string{"left-cam": "FL", "right-cam": "fr"}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}
