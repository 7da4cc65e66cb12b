package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"irfetch/dataapi"
	"irfetch/internal"
	"irfetch/utils"
)

var (
	configPath  string
	username    string
	password    string
	accessToken string
	baseURL     string
	proxyURL    string
	concurrency int
	outputPath  string
	quiet       bool
	debug       bool
	logLevel    string
	logFile     string
	config      *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "irfetch",
	Short:   "Query the iRacing data API from the command line",
	Version: "v1.0.0",
	Long: `irfetch is a command line client for the iRacing members data API.

It logs in with account credentials or an access token, follows the API's
link indirection, waits out rate limits, reassembles chunked result sets and
prints the decoded data as JSON.

Examples:
  irfetch get /data/constants/categories
  irfetch get /data/results/get -p subsession_id=12345
  irfetch chunks /data/results/lap_chart_data -p subsession_id=12345 -p simsession_number=0
  irfetch get /data/member/awards --link-field data_url
  irfetch cars -o cars.json
  irfetch ratelimit /data/constants/divisions

Environment Variables:
  IRFETCH_USERNAME      Account email
  IRFETCH_PASSWORD      Account password
  IRFETCH_ACCESS_TOKEN  Pre-issued access token (instead of username/password)
  IRFETCH_BASE_URL      Data API origin
  IRFETCH_PROXY         Proxy URL
  IRFETCH_CONCURRENCY   Parallel chunk downloads (1-16)
  IRFETCH_MAX_RETRIES   Request budget per call`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		internal.LogDebug("Configuration loaded: base_url=%s, concurrency=%d, max_retries=%d, bearer=%v",
			config.BaseURL, config.ChunkConcurrency, config.MaxRetries, config.AccessToken != "")
		return nil
	},
}

// loadConfiguration builds the effective configuration: defaults, then the
// config file, then IRFETCH_* variables, then flags the user actually set.
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()

	if configPath != "" {
		if err := config.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	config.LoadFromEnv()

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		config.BaseURL = baseURL
		config.AuthURL = internal.AuthURLFor(baseURL)
	}
	if flags.Changed("proxy") {
		config.ProxyURL = proxyURL
	}
	if flags.Changed("concurrency") {
		config.ChunkConcurrency = concurrency
	}

	// Credentials given on the command line replace the whole auth mode
	if flags.Changed("token") {
		config.AccessToken = accessToken
		config.Username = ""
		config.Password = ""
	}
	if flags.Changed("username") || flags.Changed("password") {
		if flags.Changed("username") {
			config.Username = username
		}
		if flags.Changed("password") {
			config.Password = password
		}
		if !flags.Changed("token") {
			config.AccessToken = ""
		}
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

// newClient builds a data API client from the loaded configuration
func newClient() (*dataapi.Client, error) {
	client, err := dataapi.NewClient(config)
	if err != nil {
		return nil, err
	}

	if !config.QuietMode {
		client.Chunks().SetProgress(func(total int) dataapi.ChunkProgress {
			return utils.NewProgressTracker(int64(total), false)
		})
	}
	return client, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, cancelling request", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// writeResult prints v as indented JSON, or writes it atomically to --output
func writeResult(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if outputPath == "" {
		_, err := out.Write(data)
		return err
	}

	fileOps := utils.NewFileOperations()
	if fileOps.FileExists(outputPath) {
		internal.LogDebug("Replacing existing %s", outputPath)
	}
	if err := fileOps.WriteFileAtomic(outputPath, data); err != nil {
		if cleanupErr := fileOps.CleanupPartial(outputPath); cleanupErr != nil {
			internal.LogWarn("Failed to remove partial file: %v", cleanupErr)
		}
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	internal.LogInfo("Wrote %d bytes to %s", len(data), outputPath)
	return nil
}

// reportError logs a failed command with the detail its error type carries
func reportError(err error) {
	var apiErr *internal.APIError
	var validationErr *internal.ValidationError

	switch {
	case errors.As(err, &apiErr):
		internal.LogAPIError(apiErr)
		if apiErr.IsRetryable() {
			internal.LogWarn("This failure is usually temporary, run the command again later")
		}
	case errors.As(err, &validationErr):
		internal.LogValidationError(validationErr)
	case errors.Is(err, context.Canceled):
		internal.LogInfo("Request cancelled")
	default:
		internal.LogError("%v", err)
	}
}

func init() {
	rootCmd.AddCommand(getCmd, chunksCmd, carsCmd, tracksCmd, seriesCmd, rateLimitCmd)
	addGlobalFlags(rootCmd.PersistentFlags())
}

// addGlobalFlags binds the flags shared by every command
func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&username, "username", "", "Account email (env: IRFETCH_USERNAME)")
	flags.StringVar(&password, "password", "", "Account password (env: IRFETCH_PASSWORD)")
	flags.StringVar(&accessToken, "token", "", "Access token used instead of a username and password (env: IRFETCH_ACCESS_TOKEN)")
	flags.StringVar(&baseURL, "base-url", internal.DefaultBaseURL, "Data API origin (env: IRFETCH_BASE_URL)")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS5 proxy URL (env: IRFETCH_PROXY)")
	flags.IntVarP(&concurrency, "concurrency", "c", 1, fmt.Sprintf("Parallel chunk downloads (1-%d) (env: IRFETCH_CONCURRENCY)", internal.MaxChunkConcurrency))
	flags.StringVarP(&outputPath, "output", "o", "", "Write the JSON result to this file instead of stdout")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress the progress bar and informational logs")
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: IRFETCH_DEBUG)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: IRFETCH_LOG_LEVEL)")
	flags.StringVar(&logFile, "log-file", "", "Write JSON logs to file instead of stderr (env: IRFETCH_LOG_FILE)")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(err)
	}
	return err
}
