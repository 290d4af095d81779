package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/falazar/bookworm-languages/internal/config"
	"github.com/falazar/bookworm-languages/internal/server"
	"github.com/falazar/bookworm-languages/internal/storage"
)

var (
	version = "1.0.0"
	logger  *logrus.Logger
)

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bookworm",
	Short: "Bilingual EPUB reader and translator",
	Long:  `Bookworm Languages translates EPUB books into bilingual editions and serves a read-aloud web reader that speaks each paragraph pair in the right language.`,
	Run:   runServer,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the web server",
	Run:   runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Bookworm Languages v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		showConfig(cmd)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().IntP("port", "p", 8080, "Port to run the web server on")
	rootCmd.PersistentFlags().String("provider", "", "Translation provider (google or openai)")
	rootCmd.PersistentFlags().StringP("openai-key", "k", "", "OpenAI API key")
	rootCmd.PersistentFlags().StringP("output-dir", "o", "output", "Output directory for bilingual EPUB files")
	rootCmd.PersistentFlags().StringP("temp-dir", "t", "tmp", "Temporary directory for processing files")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: config.json beside executable)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runServer(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cmd)

	for _, dir := range []string{cfg.App.TempDir, cfg.App.OutputDir, cfg.App.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	store, err := storage.Open(cfg.App.DatabasePath)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	srv, err := server.New(cfg, logger, store)
	if err != nil {
		logger.Fatalf("Failed to initialize server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	go func() {
		logger.Infof("Starting Bookworm Languages server")
		logger.Infof("Server running on port %d", cfg.Server.Port)
		logger.Infof("Translation provider: %s", cfg.Translation.Provider)
		logger.Infof("Temp directory: %s", cfg.App.TempDir)
		logger.Infof("Output directory: %s", cfg.App.OutputDir)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited gracefully")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	logger.Debugf("Loading configuration from: %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if port, _ := cmd.Flags().GetInt("port"); port != 8080 {
		cfg.Server.Port = port
	}
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.Translation.Provider = provider
	}
	if apiKey, _ := cmd.Flags().GetString("openai-key"); apiKey != "" {
		cfg.OpenAI.APIKey = apiKey
	}
	if outputDir, _ := cmd.Flags().GetString("output-dir"); outputDir != "output" {
		cfg.App.OutputDir = outputDir
	}
	if tempDir, _ := cmd.Flags().GetString("temp-dir"); tempDir != "tmp" {
		cfg.App.TempDir = tempDir
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.App.DatabasePath = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setupLogging(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// maskKey keeps enough of a key to recognize it without printing the
// whole thing. Short keys are hidden entirely.
func maskKey(key string) string {
	if len(key) <= 10 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}

func showConfig(cmd *cobra.Command) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	fmt.Printf("Bookworm Languages Configuration\n")
	fmt.Printf("Configuration file: %s\n\n", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("Configuration file does not exist\n")
		fmt.Printf("Run 'bookworm config init' to create one\n")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return
	}

	fmt.Printf("Server Settings:\n")
	fmt.Printf("  Port: %d\n", cfg.Server.Port)
	fmt.Printf("  Read Timeout: %s\n", cfg.Server.ReadTimeout)
	fmt.Printf("  Write Timeout: %s\n", cfg.Server.WriteTimeout)
	fmt.Printf("\n")

	fmt.Printf("Translation Settings:\n")
	fmt.Printf("  Provider: %s\n", cfg.Translation.Provider)
	fmt.Printf("  Chunk Limit: %d bytes\n", cfg.Translation.ChunkLimit)
	fmt.Printf("  Cooldown: %s\n", cfg.Translation.Cooldown)
	fmt.Printf("  Pairing Policy: %s\n", cfg.Translation.PairingPolicy)
	fmt.Printf("  Max Retries: %d\n", cfg.Translation.MaxRetries)
	fmt.Printf("  Retry Delay: %s\n", cfg.Translation.RetryDelay)
	fmt.Printf("  Supported Languages: %d languages\n", len(cfg.Translation.SupportedLangs))
	fmt.Printf("\n")

	if cfg.Translation.Provider == "openai" {
		fmt.Printf("OpenAI Settings:\n")
		if cfg.OpenAI.APIKey != "" {
			fmt.Printf("  API Key: %s\n", maskKey(cfg.OpenAI.APIKey))
		} else {
			fmt.Printf("  API Key: not set\n")
		}
		fmt.Printf("  Model: %s\n", cfg.OpenAI.Model)
		fmt.Printf("  Max Tokens: %d\n", cfg.OpenAI.MaxTokens)
		fmt.Printf("  Temperature: %.1f\n", cfg.OpenAI.Temperature)
		fmt.Printf("\n")
	}

	fmt.Printf("Application Settings:\n")
	fmt.Printf("  Temp Directory: %s\n", cfg.App.TempDir)
	fmt.Printf("  Output Directory: %s\n", cfg.App.OutputDir)
	fmt.Printf("  Upload Directory: %s\n", cfg.App.UploadDir)
	fmt.Printf("  Database: %s\n", cfg.App.DatabasePath)
}

func initConfig(cmd *cobra.Command) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Configuration file already exists: %s\n", configPath)
		return
	}

	if _, err := config.Load(configPath); err != nil {
		fmt.Printf("Failed to initialize configuration: %v\n", err)
		return
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	fmt.Printf("Run 'bookworm' to start the server\n")
}
