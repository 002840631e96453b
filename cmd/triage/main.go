package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fivarsson/triage/internal/api"
	"github.com/fivarsson/triage/internal/classifier"
	"github.com/fivarsson/triage/internal/domain"
	"github.com/fivarsson/triage/internal/engine"
	"github.com/fivarsson/triage/internal/gitsync"
	"github.com/fivarsson/triage/internal/store"
	"github.com/fivarsson/triage/internal/vault"
	"github.com/spf13/cobra"
)

var (
	vaultPath string
	dbPath    string
)

func main() {
	defaultVault := os.Getenv("VAULT_PATH")
	if defaultVault == "" {
		defaultVault = "./obsidian-vault"
	}

	home, _ := os.UserHomeDir()
	defaultDB := filepath.Join(home, ".triage", "triage.db")

	rootCmd := &cobra.Command{
		Use:   "triage",
		Short: "Turn captured content into a classified, git-synced knowledge base",
	}

	rootCmd.PersistentFlags().StringVar(&vaultPath, "vault", defaultVault, "vault path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "index database path")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getIndex() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(dbPath)
}

// getSyncer builds the git syncer from the environment, or nil when remote
// sync is not configured.
func getSyncer() *gitsync.Syncer {
	opts, err := gitsync.FromEnv(vaultPath)
	if err != nil {
		log.Printf("remote sync disabled: %v", err)
		return nil
	}
	return gitsync.New(&gitsync.ExecGitRunner{}, opts)
}

func getClassifier() engine.Classifier {
	clf, err := classifier.New()
	if err != nil {
		log.Printf("classification disabled, fallback records only: %v", err)
		return nil
	}
	return clf
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the triage server",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := getIndex()
			if err != nil {
				return err
			}

			syncer := getSyncer()
			if syncer != nil {
				if err := syncer.Init(context.Background()); err != nil {
					return fmt.Errorf("init git sync: %w", err)
				}
			}

			eng := engine.New(getClassifier(), vault.NewWriter(vaultPath), index, syncer)
			server := api.New(eng, index, addr)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Run() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Printf("received %s, shutting down", sig)
				if syncer != nil {
					if err := syncer.FinalSync(context.Background()); err != nil {
						return fmt.Errorf("final sync: %w", err)
					}
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":3000", "server address")
	return cmd
}

func addCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Triage a piece of content from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			index, err := getIndex()
			if err != nil {
				return err
			}
			defer index.Close()

			var syncer *gitsync.Syncer
			if !noSync {
				syncer = getSyncer()
				if syncer != nil {
					if err := syncer.Init(context.Background()); err != nil {
						return fmt.Errorf("init git sync: %w", err)
					}
				}
			}

			eng := engine.New(getClassifier(), vault.NewWriter(vaultPath), index, syncer)

			result, err := eng.Process(domain.Content{Text: text}, domain.Source{Type: "cli"})
			if err != nil {
				return err
			}

			fmt.Printf("Created note: %s\n", result.NotePath)
			fmt.Printf("Type: %s  Category: %s  Priority: %s\n",
				result.Record.Type, result.Record.Category, result.Record.Priority)

			if syncer != nil {
				if err := syncer.FinalSync(context.Background()); err != nil {
					return fmt.Errorf("final sync: %w", err)
				}
				fmt.Println("Synced to remote")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip pushing to the remote store")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show processed-record counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := getIndex()
			if err != nil {
				return err
			}
			defer index.Close()

			total, err := index.Total()
			if err != nil {
				return err
			}
			byType, err := index.CountByType()
			if err != nil {
				return err
			}
			byCategory, err := index.CountByCategory()
			if err != nil {
				return err
			}

			fmt.Printf("Processed: %d\n", total)

			fmt.Println("\nBy type:")
			for k, v := range byType {
				fmt.Printf("  %-10s %d\n", k, v)
			}

			fmt.Println("\nBy category:")
			for k, v := range byCategory {
				fmt.Printf("  %-14s %d\n", k, v)
			}

			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Commit and push local vault changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			syncer := getSyncer()
			if syncer == nil {
				return fmt.Errorf("GIT_REMOTE_URL and GIT_TOKEN must be set")
			}

			ctx := context.Background()
			if err := syncer.Init(ctx); err != nil {
				return fmt.Errorf("init git sync: %w", err)
			}

			if err := syncer.PushLocal(ctx, "Manual vault sync"); err != nil {
				return err
			}

			fmt.Println("Vault synced")
			return nil
		},
	}
}
