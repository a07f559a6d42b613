package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-osu-download/internal/api"
	"go-osu-download/internal/config"
	"go-osu-download/internal/models"
)

// envPrefix namespaces environment overrides, e.g. OSUDL_USERNAME.
const envPrefix = "OSUDL"

var (
	// cfgFile holds the path to the config file specified by the user
	cfgFile string
	// envFile is loaded into the process environment before config is read
	envFile        string
	logApiFlag     bool
	savePathFlag   string
	dbPathFlag     string
	apiTimeoutFlag int
	logLevel       string
	logFormat      string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the configured transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// globalClient is shared by the session and the downloader.
var globalClient *api.Client

// apiBaseUrl is the service root handed to globalClient.
var apiBaseUrl = api.OsuBaseUrl

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "osu-downloader",
	Short: "Batch downloader for osu! beatmapsets",
	Long: `osu-downloader logs into osu.ppy.sh, keeps the session between runs and
downloads beatmapset archives (.osz) by set id, with a history database,
a local search index and torrent generation for what has been downloaded.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command and releases global resources afterwards.
func Execute() error {
	defer closeLoggingTransport()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with OSUDL_* variables (optional)")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log redacted API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save beatmapsets (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Path of the history/session database (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Seconds to wait for response headers (overrides config, -1 uses config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// loadGlobalConfig loads the env file and config, applies flag overrides and
// builds the shared HTTP client.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.WithError(err).Warnf("Could not load env file %s", envFile)
			}
		} else {
			log.Debugf("Loaded environment from %s", envFile)
		}
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Debugf("No config file at %s, using defaults", cfgFile)
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
	}
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
			log.Debugf("Overriding SavePath based on --save-path flag: %s", savePathFlag)
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}
	if cmd.Flags().Changed("db-path") && dbPathFlag != "" {
		globalConfig.DatabasePath = dbPathFlag
	}
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ClientTimeoutSec = apiTimeoutFlag
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ClientTimeoutSec)
		}
	}
	if globalConfig.ClientTimeoutSec <= 0 {
		globalConfig.ClientTimeoutSec = config.Defaults().ClientTimeoutSec
	}

	setupClient()
	return nil
}

// setupClient builds globalClient, wrapping the transport with a
// LoggingTransport when API logging is enabled.
func setupClient() {
	closeLoggingTransport()

	var wrap func(http.RoundTripper) http.RoundTripper
	if globalConfig.LogApiRequests {
		logFilePath := "api.log"
		if globalConfig.SavePath != "" {
			if _, statErr := os.Stat(globalConfig.SavePath); statErr == nil {
				logFilePath = filepath.Join(globalConfig.SavePath, logFilePath)
			} else {
				log.Warnf("SavePath '%s' not found, saving api.log to current directory.", globalConfig.SavePath)
			}
		}
		wrap = func(base http.RoundTripper) http.RoundTripper {
			lt, err := api.NewLoggingTransport(base, logFilePath)
			if err != nil {
				log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
				return base
			}
			log.Infof("API logging to file: %s", logFilePath)
			return lt
		}
	}

	httpClient := api.NewHttpClient(wrap, time.Duration(globalConfig.ClientTimeoutSec)*time.Second)
	globalHttpTransport = httpClient.Transport
	globalClient = api.NewClient(httpClient)
	globalClient.BaseUrl = apiBaseUrl
}

func closeLoggingTransport() {
	if lt, ok := globalHttpTransport.(*api.LoggingTransport); ok && lt != nil {
		if err := lt.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
	}
	globalHttpTransport = nil
}
