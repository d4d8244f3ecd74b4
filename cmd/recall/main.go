package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/config"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/processor"
	"github.com/xhad/recall/pkg/rag"
	"github.com/xhad/recall/pkg/store"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "recall",
		Short:         "Recall",
		Long:          `Store text documents and answer questions from them`,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
			}
			setupLogging(cfg.Log)
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newIngestCmd(opts))

	return rootCmd
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// newService builds the store, generator and orchestrator from cfg. The
// caller owns the returned store and must close it.
func newService(ctx context.Context, cfg *config.Config) (*rag.Service, types.DocumentStore, error) {
	tokenizer := processor.NewWithConfig(processor.ProcessorConfig{})

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Type:      cfg.Embedder.Type,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		Dimension: cfg.Embedder.Dimension,
	}, &tokenizer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	documentStore, err := store.New(ctx, store.Config{
		Backend:    cfg.Store.Backend,
		Path:       cfg.Store.Path,
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
	}, embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	generator, err := llm.NewGenerator(cfg.LLM.Mock, llm.GeneratorConfig{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		documentStore.Close()
		return nil, nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	log.Info().
		Str("mode", generator.Mode()).
		Str("store", cfg.Store.Backend).
		Str("embedder", cfg.Embedder.Type).
		Msg("service ready")

	return rag.New(documentStore, generator), documentStore, nil
}
