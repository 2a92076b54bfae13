package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/hoopcam/edgectl/internal/camera"
	"github.com/hoopcam/edgectl/internal/catalog"
	"github.com/hoopcam/edgectl/internal/config"
	"github.com/hoopcam/edgectl/internal/encode"
	"github.com/hoopcam/edgectl/internal/ingest"
	"github.com/hoopcam/edgectl/internal/logging"
	"github.com/hoopcam/edgectl/internal/orchestrator"
	"github.com/hoopcam/edgectl/internal/registry"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "edgectl",
	Short: "Edge controller for a court's action-camera fleet",
	Long:  `edgectl drives camera recording, chapter ingestion, and the game-clip pipeline for one court's Jetson.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the pipeline loop",
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline()
	},
}

var pipelineRunOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single pipeline pass and exit",
	Run: func(cmd *cobra.Command, args []string) {
		runPipelineOnce()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edgectl v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarise configuration and the most recent pipeline run",
	Run: func(cmd *cobra.Command, args []string) {
		checkStatus()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/edgectl/edgectl.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pipelineRunOnceCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

// pipelineDeps bundles every adapter the orchestrator needs, built once per
// process from the loaded configuration.
type pipelineDeps struct {
	cfg          *config.Config
	catalog      *catalog.Adapter
	camera       *camera.Adapter
	orchestrator *orchestrator.Orchestrator
}

func buildPipelineDeps(ctx context.Context, cfg *config.Config) (*pipelineDeps, error) {
	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.UploadRegion)}
	if cfg.AWSAccessKeyID != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	objectStore := ingest.NewObjectStore(s3Client, cfg.UploadBucket)

	batchOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSBatchRegion)}
	if cfg.AWSAccessKeyID != "" {
		batchOpts = append(batchOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken),
		))
	}
	batchCfg, err := awsconfig.LoadDefaultConfig(ctx, batchOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS batch config: %w", err)
	}
	batchClient := batch.NewFromConfig(batchCfg)
	encodeAdapter := encode.New(batchClient, encode.Queues{
		Small: cfg.AWSBatchJobQueue,
		Large: cfg.AWSBatchJobQueueLarge,
	}, encode.JobDefinitions{
		Standard: cfg.AWSBatchJobDefinition,
		Extract:  cfg.AWSBatchJobDefinitionExtract,
	}, objectStore)

	catalogAdapter, err := catalog.New(ctx, cfg.CatalogProjectID, cfg.CatalogCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("build catalog adapter: %w", err)
	}

	cameraAdapter := camera.NewAdapter(cfg.CameraAngleMap)

	downloadCfg := ingest.DownloadConfig{
		ChunkSizeBytes: cfg.DownloadChunkSizeKB * 1024,
		ConnectTimeout: time.Duration(cfg.DownloadConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(cfg.DownloadReadTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.DownloadMaxRetries,
		MaxBackoff:     30 * time.Second,
	}
	downloadClient := ingest.NewDownloadClient(downloadCfg.ConnectTimeout)
	stageDir := filepath.Join(config.GetDataDir(), "stage")
	engine := ingest.NewEngine(objectStore, downloadClient, downloadCfg, stageDir)

	registryAdapter := registry.New(cfg.UballBackendURL, cfg.UballAuthEmail, cfg.UballAuthPassword)

	store, err := orchestrator.NewStore(cfg.RunStateDir)
	if err != nil {
		return nil, fmt.Errorf("build run state store: %w", err)
	}

	orch := orchestrator.New(orchestrator.Options{
		JetsonID:             cfg.JetsonID,
		DeviceID:             cfg.JetsonID,
		Court:                cfg.UploadLocation,
		MaxConcurrentIngests: cfg.MaxConcurrentIngests,
		DownloadConfig:       downloadCfg,
		AutoDeleteSD:         cfg.AutoDeleteSD,
		OutputBucket:         cfg.UploadBucket,
	}, store, catalogAdapter, cameraAdapter, engine, encodeAdapter, registryAdapter)

	return &pipelineDeps{cfg: cfg, catalog: catalogAdapter, camera: cameraAdapter, orchestrator: orch}, nil
}

// runPipeline starts the long-running pipeline loop: an immediate recovery
// pass, then a fresh run on every tick until a shutdown signal arrives.
func runPipeline() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := buildPipelineDeps(ctx, cfg)
	if err != nil {
		log.Error("failed to initialise pipeline dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.catalog.Close()

	log.Info("starting pipeline loop", "jetsonId", cfg.JetsonID, "court", cfg.UploadLocation)

	if state, err := deps.orchestrator.RecoverPending(ctx); err != nil {
		log.Error("recovery run failed", "error", err)
	} else {
		log.Info("recovery run complete", "runId", state.PipelineID, "status", state.Status)
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runID := fmt.Sprintf("run-%s-%d", cfg.JetsonID, time.Now().UTC().Unix())
			state, err := deps.orchestrator.Run(ctx, runID)
			if err != nil {
				log.Error("pipeline run failed", "runId", runID, "error", err)
				continue
			}
			log.Info("pipeline run complete", "runId", state.PipelineID, "status", state.Status,
				"sessionsCompleted", state.SessionsCompleted, "gamesCompleted", state.GamesCompleted)
		case <-sigChan:
			log.Info("shutting down pipeline loop")
			cancel()
			return
		}
	}
}

// runPipelineOnce drives a single pipeline pass, for cron-style invocation.
func runPipelineOnce() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	deps, err := buildPipelineDeps(ctx, cfg)
	if err != nil {
		log.Error("failed to initialise pipeline dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.catalog.Close()

	runID := fmt.Sprintf("run-%s-%d", cfg.JetsonID, time.Now().UTC().Unix())
	state, err := deps.orchestrator.Run(ctx, runID)
	if err != nil {
		log.Error("pipeline run failed", "runId", runID, "error", err)
		os.Exit(1)
	}
	log.Info("pipeline run complete", "runId", state.PipelineID, "status", state.Status)
}

func checkStatus() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Println("Status: not configured")
		return
	}

	fmt.Printf("Jetson ID: %s\n", cfg.JetsonID)
	fmt.Printf("Court: %s\n", cfg.UploadLocation)
	fmt.Printf("Upload bucket: %s\n", cfg.UploadBucket)
	fmt.Printf("Camera angles: %v\n", cfg.CameraAngleMap)

	latest, err := latestRunStateFile(cfg.RunStateDir)
	if err != nil || latest == "" {
		fmt.Println("Most recent run: none found")
		return
	}
	fmt.Printf("Most recent run state file: %s\n", latest)
}

// latestRunStateFile returns the most recently modified *.json file under
// dir, judged by filesystem mtime.
func latestRunStateFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var candidates []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		ii, _ := candidates[i].Info()
		ij, _ := candidates[j].Info()
		if ii == nil || ij == nil {
			return false
		}
		return ii.ModTime().After(ij.ModTime())
	})
	return filepath.Join(dir, candidates[0].Name()), nil
}
