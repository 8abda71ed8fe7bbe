// Package main is the entry point for the Empath service: an
// emotion-aware conversational wellness companion that analyzes what a
// user says (or records), generates an empathetic reply, and optionally
// speaks it back.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/empath/internal/analysis"
	"github.com/normanking/empath/internal/config"
	"github.com/normanking/empath/internal/llm"
	"github.com/normanking/empath/internal/pipeline"
	"github.com/normanking/empath/internal/prompt"
	"github.com/normanking/empath/internal/server"
	"github.com/normanking/empath/internal/store"
	"github.com/normanking/empath/internal/synthesis"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "empath",
		Short: "Emotion-aware conversational wellness service",
		Long: `Empath accepts a typed message or a webcam recording, extracts
emotional signals, and answers with a safety-constrained empathetic
reply, optionally rendered as speech.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default ~/.empath/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}

// setupLogging configures the global zerolog logger: human-readable
// console output on stderr, plus an optional JSON file sink.
func setupLogging(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger()
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP turn service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			st, err := buildStore(cfg)
			if err != nil {
				return err
			}

			dispatcher := analysis.NewDispatcher(analysis.Config{
				Mode:        cfg.Analysis.Mode,
				CombinedURL: cfg.Analysis.CombinedURL,
				AudioURL:    cfg.Analysis.AudioURL,
				VideoURL:    cfg.Analysis.VideoURL,
				Timeout:     cfg.Analysis.Timeout,
			})

			generator := llm.NewClient(llm.Config{
				Endpoint:    cfg.LLM.Endpoint,
				Model:       cfg.LLM.Model,
				MaxTokens:   cfg.LLM.MaxTokens,
				Temperature: cfg.LLM.Temperature,
				TopP:        cfg.LLM.TopP,
				Timeout:     cfg.LLM.Timeout,
			})
			if !generator.Available(cmd.Context()) {
				log.Warn().Str("endpoint", cfg.LLM.Endpoint).
					Msg("generative backend is not reachable, turns will fail until it comes up")
			}

			var speaker pipeline.Speaker
			if cfg.Synthesis.Enabled {
				speaker = synthesis.NewSynthesizer(synthesis.Config{
					BaseURL:         cfg.Synthesis.BaseURL,
					Timeout:         cfg.Synthesis.Timeout,
					Exaggeration:    cfg.Synthesis.Exaggeration,
					Temperature:     cfg.Synthesis.Temperature,
					Seed:            cfg.Synthesis.Seed,
					CFGWeight:       cfg.Synthesis.CFGWeight,
					VADTrim:         cfg.Synthesis.VADTrim,
					VoicePromptPath: cfg.Synthesis.VoicePromptPath,
				})
			}

			pipe := pipeline.New(st, dispatcher, generator, speaker, cfg.LLM.Mode)
			srv := server.New(cfg, pipe)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("using redis conversation store")
		return store.NewRedisStore(rdb, prompt.SystemPrompt, cfg.Store.MaxLen, cfg.Store.RedisTTL), nil
	default:
		log.Info().Str("dir", cfg.Store.Dir).Msg("using file conversation store")
		return store.NewFileStore(cfg.Store.Dir, prompt.SystemPrompt, cfg.Store.MaxLen)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(homeDir, ".empath", "config.yaml")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists at %s", path)
			}
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Printf("wrote default config to %s\n", path)
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("empath %s\n", version)
		},
	}
}
