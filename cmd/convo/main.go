// Package main provides the convo CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/convo/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	model    string
	dbPath   string
	system   string
	stream   bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "convo",
		Short: "Persistent multi-turn conversations with hosted LLMs",
		Long: `A CLI front-end for the convo library: conversations with a hosted LLM
completion API, with every turn and per-conversation metadata persisted in a
local SQLite database keyed by conversation ID.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model to use (default per provider)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default database.sqlite3)")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(metaCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider: provider,
		Model:    model,
		DBPath:   dbPath,
		System:   system,
		Stream:   stream,
	}
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session. Turns are appended to the conversation's
stored transcript, so quitting and resuming with the same ID continues where
you left off.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), args[0], options())
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the response as it arrives")

	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [conversation-id] [message]",
		Short: "Send one message and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.AskOnce(context.Background(), args[0], args[1], options())
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the response as it arrives")

	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Print a conversation's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowHistory(context.Background(), args[0], options())
		},
	}
}

func metaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Read or write a conversation's metadata",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [conversation-id]",
		Short: "Print the metadata document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowMetadata(context.Background(), args[0], options())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [conversation-id] [json]",
		Short: "Replace the metadata document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.SetMetadata(context.Background(), args[0], args[1], options())
		},
	})

	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored conversation IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListConversations(context.Background(), options())
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [conversation-id]",
		Short: "Delete a conversation's transcript and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.DeleteConversation(context.Background(), args[0], options())
		},
	}
}
