package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/loom/internal/profile"
	"github.com/hrygo/loom/plugin/ai"
	"github.com/hrygo/loom/plugin/ai/agent"
	"github.com/hrygo/loom/plugin/ai/agent/tools"
	"github.com/hrygo/loom/plugin/ai/checkpoint"
	"github.com/hrygo/loom/plugin/ai/rag"
	"github.com/hrygo/loom/server"
	"github.com/hrygo/loom/service/chat"
	"github.com/hrygo/loom/store"
	"github.com/hrygo/loom/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Conversational agent backend with durable checkpoints",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := profile.FromViper(viper.GetViper())
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		p.Version = version
		setupLogger(p)
		slog.Info("starting loom", "version", version, "profile", p.String())

		dbDriver, err := db.NewDBDriver(p)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}
		st := store.New(dbDriver, p)
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		if p.AIAPIKey == "" {
			return fmt.Errorf("ai api key is required (LOOM_AI_API_KEY)")
		}
		provider, err := ai.NewProvider(&ai.Config{
			BaseURL:           p.AIBaseURL,
			APIKey:            p.AIAPIKey,
			ChatModel:         p.AIChatModel,
			EmbeddingModel:    p.AIEmbeddingModel,
			RequestsPerSecond: 5,
		})
		if err != nil {
			return fmt.Errorf("failed to init ai provider: %w", err)
		}

		artifacts, err := rag.NewArtifactStore(filepath.Join(p.Data, "documents"))
		if err != nil {
			return fmt.Errorf("failed to init artifact store: %w", err)
		}
		docs := rag.NewService(st, provider, artifacts, p.ChunkSize, p.ChunkOverlap)

		engine := agent.NewEngine(
			provider,
			checkpoint.NewSaver(st),
			buildRegistry(p),
			docs,
			agent.Config{MaxToolHops: p.MaxToolHops, RetrievalTopK: p.RetrievalTopK},
		)
		svc := chat.NewService(st, engine, docs, provider)

		srv := server.New(p, st, svc)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(ctx)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			slog.Info("shutting down")
			srv.Shutdown(context.Background())
		}
		return nil
	},
}

// buildRegistry registers every tool whose backend is configured. The
// calculator needs no credentials and is always available.
func buildRegistry(p *profile.Profile) *tools.Registry {
	client := &http.Client{Timeout: 15 * time.Second}
	list := []tools.Tool{tools.NewCalculatorTool()}
	if p.SearchAPIKey != "" {
		list = append(list, tools.NewSearchTool(client, p.SearchAPIKey))
	}
	if p.WeatherAPIKey != "" {
		list = append(list, tools.NewWeatherTool(client, p.WeatherAPIKey))
	}
	if p.StockAPIKey != "" {
		list = append(list, tools.NewStockPriceTool(client, p.StockAPIKey))
	}
	return tools.NewRegistry(list...)
}

func setupLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `server mode, can be "dev" or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "binding address")
	rootCmd.PersistentFlags().Int("port", 8081, "binding port")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("loom")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
