package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/waspdev/waspd/ai/engine"
	"github.com/waspdev/waspd/ai/memory"
	"github.com/waspdev/waspd/ai/metrics"
	"github.com/waspdev/waspd/ai/provider"
	"github.com/waspdev/waspd/ai/router"
	"github.com/waspdev/waspd/internal/profile"
	"github.com/waspdev/waspd/internal/version"
	"github.com/waspdev/waspd/plugin/telegram"
	"github.com/waspdev/waspd/server"
	"github.com/waspdev/waspd/store"
	"github.com/waspdev/waspd/store/db/sqlite"
)

// cloudDefaults maps each provider to the model dispatched when no
// explicit model is configured. The first provider with a stored
// credential wins.
var cloudDefaults = []struct {
	provider string
	model    string
}{
	{"openai", "gpt-4o-mini"},
	{"anthropic", "claude-3-5-sonnet-latest"},
	{"gemini", "gemini-1.5-flash"},
}

var rootCmd = &cobra.Command{
	Use:   "waspd",
	Short: `An AI agent runtime. Routes requests between a local inference engine and cloud providers, with content-addressed memory.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Systemd units carry their environment in the unit file; .env is
		// for direct binary execution only.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:             viper.GetString("mode"),
			Addr:             viper.GetString("addr"),
			Port:             viper.GetInt("port"),
			Data:             viper.GetString("data"),
			DSN:              viper.GetString("dsn"),
			RoutingMode:      viper.GetString("routing-mode"),
			RoutingThreshold: viper.GetInt("routing-threshold"),
			PrivacyMode:      viper.GetBool("privacy-mode"),
			MemoryChunkSize:  viper.GetInt("memory-chunk-size"),
			MemoryTopK:       viper.GetInt("memory-top-k"),
			QueueMaxDepth:    viper.GetInt("queue-max-depth"),
			EngineBaseURL:    viper.GetString("engine-base-url"),
			EngineModel:      viper.GetString("engine-model"),
			Version:          version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := sqlite.NewDB(instanceProfile)
		if err != nil {
			slog.Error("failed to open database", "dsn", instanceProfile.DSN, "error", err)
			return
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		exporter := metrics.NewExporter(metrics.DefaultConfig())

		memoryEngine := memory.NewEngine(instanceProfile, storeInstance.MemoryChunkStore, storeInstance.SessionStore)
		memoryEngine.SetExporter(exporter)
		if err := memoryEngine.Warm(ctx); err != nil {
			slog.Error("failed to warm memory engine", "error", err)
			return
		}

		engineClient := engine.NewClient(instanceProfile)
		if instanceProfile.EngineModel != "" {
			if err := engineClient.Load(ctx, instanceProfile.EngineModel); err != nil {
				slog.Warn("local model not loaded", "model", instanceProfile.EngineModel, "error", err)
			}
		}

		providerClient := provider.NewClient(provider.DefaultRegistry(), provider.WithMetrics(exporter))
		cloudExecutor, cloudAvailable := buildCloudExecutor(ctx, storeInstance, instanceProfile, providerClient)

		taskRouter := router.New(
			instanceProfile,
			memoryEngine,
			router.NewLocalExecutor(engineClient),
			cloudExecutor,
			router.WithMetrics(exporter),
		)
		taskRouter.Start(ctx)
		localLoaded := engineClient.Loaded()
		taskRouter.SetExecutorStatus(&localLoaded, &cloudAvailable)

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, taskRouter, engineClient, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}
		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		if instanceProfile.BotToken != "" {
			bot, err := telegram.NewBot(instanceProfile, taskRouter, memoryEngine, engineClient)
			if err != nil {
				slog.Error("failed to create bot channel", "error", err)
			} else {
				g.Go(func() error { return bot.Run(gctx) })
			}
		}

		printGreetings(instanceProfile)

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
		_ = g.Wait()
	},
}

// buildCloudExecutor picks the first provider with a stored credential.
// The credential is re-read per call so rotation takes effect without a
// restart.
func buildCloudExecutor(ctx context.Context, st *store.Store, p *profile.Profile, client *provider.Client) (router.Executor, bool) {
	bundle, err := st.GetCredentials(ctx, p.Passphrase)
	if err != nil {
		slog.Warn("failed to load credential bundle, cloud routing disabled", "error", err)
		return nil, false
	}

	for _, candidate := range cloudDefaults {
		providerID := candidate.provider
		if bundle[providerID] == "" {
			continue
		}
		credential := func(ctx context.Context) (string, error) {
			fresh, err := st.GetCredentials(ctx, p.Passphrase)
			if err != nil {
				return "", err
			}
			return fresh[providerID], nil
		}
		slog.Info("cloud provider selected", "provider", providerID, "model", candidate.model)
		return router.NewCloudExecutor(client, providerID, candidate.model, credential), true
	}
	return nil, false
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28081)
	viper.SetDefault("routing-mode", "auto")
	viper.SetDefault("routing-threshold", 6)
	viper.SetDefault("memory-chunk-size", 300)
	viper.SetDefault("memory-top-k", 8)
	viper.SetDefault("queue-max-depth", 50)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("dsn", "", "database file path")
	rootCmd.PersistentFlags().String("routing-mode", "auto", `routing mode, can be "auto", "local" or "cloud"`)
	rootCmd.PersistentFlags().Int("routing-threshold", 6, "complexity threshold above which auto mode routes to cloud")
	rootCmd.PersistentFlags().Bool("privacy-mode", false, "force every task onto the local engine")
	rootCmd.PersistentFlags().Int("memory-chunk-size", 300, "target memory chunk size in words")
	rootCmd.PersistentFlags().Int("memory-top-k", 8, "number of memory chunks retrieved per request")
	rootCmd.PersistentFlags().Int("queue-max-depth", 50, "maximum queued tasks before background eviction")
	rootCmd.PersistentFlags().String("engine-base-url", "", "base URL of the local inference engine")
	rootCmd.PersistentFlags().String("engine-model", "", "local model to load on startup")

	for _, flag := range []string{
		"mode", "addr", "port", "data", "dsn",
		"routing-mode", "routing-threshold", "privacy-mode",
		"memory-chunk-size", "memory-top-k", "queue-max-depth",
		"engine-base-url", "engine-model",
	} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("waspd")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("waspd %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database: %s\n", profile.DSN)
	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("Routing: %s (threshold %d)\n", profile.RoutingMode, profile.RoutingThreshold)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
