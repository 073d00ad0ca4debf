package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matt0x6f/twitch-chat/internal/config"
	"github.com/matt0x6f/twitch-chat/internal/logger"
	"github.com/matt0x6f/twitch-chat/internal/security"
	"github.com/matt0x6f/twitch-chat/internal/storage"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "twitch-chat",
		Short:         "Twitch chat bot",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newTokenCmd(), newHistoryCmd(), newWhispersCmd(), newStatsCmd())
	return root
}

type configFlags struct {
	path    string
	envFile string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "config", "c", "config.json", "path to the JSON settings file")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "optional KEY=VALUE file applied before the environment")
}

func (f *configFlags) load() (*config.Config, error) {
	if err := config.LoadEnvFile(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.path, security.NewKeychain())
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.Application.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to chat and run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			app, err := NewApp(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := app.Run(ctx)
			logger.Log.Info().Msg("Shutting down")
			if err := app.Close(); err != nil {
				logger.Log.Warn().Err(err).Msg("Failed to close chat log")
			}
			return runErr
		},
	}
	flags.register(cmd)
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage OAuth tokens stored in the OS keychain",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <nickname> <token>",
		Short: "Store the token used when the config has none",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.NewKeychain().StoreToken(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <nickname>",
		Short: "Remove a stored token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.NewKeychain().DeleteToken(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted token for %s\n", args[0])
			return nil
		},
	})
	return cmd
}

// openLog opens the chat log named by the config
func openLog(flags *configFlags) (*storage.Storage, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	if cfg.Application.Database == "" {
		return nil, fmt.Errorf("chat log disabled: set application.database in %s", flags.path)
	}
	return storage.NewStorage(cfg.Application.Database, 1, time.Second)
}

func newHistoryCmd() *cobra.Command {
	var (
		flags configFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history <channel>",
		Short: "Print the most recent logged messages of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stor, err := openLog(&flags)
			if err != nil {
				return err
			}
			defer stor.Close()

			channel := "#" + strings.ToLower(strings.TrimPrefix(args[0], "#"))
			messages, err := stor.GetMessages(channel, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range messages {
				fmt.Fprintf(out, "%s <%s> %s\n", m.Timestamp.Format(time.RFC3339), m.Sender, m.Body)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of messages")
	return cmd
}

func newWhispersCmd() *cobra.Command {
	var (
		flags configFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "whispers <nickname>",
		Short: "Print the most recent logged whispers from a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stor, err := openLog(&flags)
			if err != nil {
				return err
			}
			defer stor.Close()

			whispers, err := stor.GetWhispers(strings.ToLower(args[0]), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range whispers {
				fmt.Fprintf(out, "%s <%s> %s\n", m.Timestamp.Format(time.RFC3339), m.Sender, m.Body)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of whispers")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print logged message counts per channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stor, err := openLog(&flags)
			if err != nil {
				return err
			}
			defer stor.Close()

			stats, err := stor.GetChannelStats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range stats {
				fmt.Fprintf(out, "%-25s %8d  last %s\n", s.Channel, s.Messages, s.LastSeen.Format(time.RFC3339))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
