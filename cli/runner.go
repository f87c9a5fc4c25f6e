// Command execution for CLI commands.
//
// Information Hiding:
// - Conversation setup hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/richinex/convo/config"
	"github.com/richinex/convo/conversation"
	"github.com/richinex/convo/llm"
	"github.com/richinex/convo/storage"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	Model    string
	DBPath   string
	System   string
	Stream   bool
}

// openConversation builds a conversation from CLI options and env settings.
func openConversation(conversationID string, opts Options) (*conversation.Conversation, error) {
	providerName := opts.Provider
	if providerName == "" {
		providerName = "openai"
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, err
	}

	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = settings.LLM.Model
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = settings.Conversation.DatabasePath
	}
	systemPrompt := opts.System
	if systemPrompt == "" {
		systemPrompt = settings.Conversation.SystemPrompt
	}

	return conversation.NewBuilder(conversationID).
		ProviderType(providerType).
		APIKey(apiKey).
		Model(model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		Database(dbPath).
		SystemPrompt(systemPrompt).
		MessageLimit(settings.Conversation.MessageLimit).
		TimeLimit(settings.Conversation.TimeLimit).
		RequestTimeout(settings.Conversation.RequestTimeout).
		Open()
}

// AskOnce sends a single message and prints the reply.
func AskOnce(ctx context.Context, conversationID, message string, opts Options) error {
	conv, err := openConversation(conversationID, opts)
	if err != nil {
		return err
	}
	defer conv.Close()

	if opts.Stream {
		return streamReply(ctx, conv, message)
	}

	reply, err := conv.Ask(ctx, message)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

// Chat starts an interactive chat session.
func Chat(ctx context.Context, conversationID string, opts Options) error {
	conv, err := openConversation(conversationID, opts)
	if err != nil {
		return err
	}
	defer conv.Close()

	fmt.Printf("Chatting as conversation %q (%s). Type 'exit' to quit.\n\n", conv.ID(), conv.Provider().Model())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if opts.Stream {
			if err := streamReply(ctx, conv, input); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}

		reply, err := conv.Ask(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("assistant> %s\n\n", reply)
	}

	return scanner.Err()
}

func streamReply(ctx context.Context, conv *conversation.Conversation, message string) error {
	chunks := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range chunks {
			fmt.Print(chunk)
		}
		fmt.Println()
	}()

	_, err := conv.AskStream(ctx, message, chunks)
	close(chunks)
	<-done
	return err
}

// ShowHistory prints the conversation transcript.
func ShowHistory(ctx context.Context, conversationID string, opts Options) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	turns, err := store.History(ctx, conversationID, storage.Window{})
	if err != nil {
		return err
	}

	if len(turns) == 0 {
		fmt.Println("(empty conversation)")
		return nil
	}

	for _, turn := range turns {
		fmt.Printf("[%s] %s: %s\n", turn.CreatedAt.Format("2006-01-02 15:04:05"), turn.Role, turn.Content)
	}
	return nil
}

// ShowMetadata prints the conversation's metadata document as JSON.
func ShowMetadata(ctx context.Context, conversationID string, opts Options) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	meta, err := store.GetMetadata(ctx, conversationID)
	if err != nil {
		return err
	}
	if meta == nil {
		fmt.Println("(no metadata)")
		return nil
	}

	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// SetMetadata replaces the conversation's metadata with the given JSON document.
func SetMetadata(ctx context.Context, conversationID, rawJSON string, opts Options) error {
	var doc storage.Metadata
	if err := json.Unmarshal([]byte(rawJSON), &doc); err != nil {
		return fmt.Errorf("invalid metadata JSON: %w", err)
	}

	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.SetMetadata(ctx, conversationID, doc)
}

// ListConversations prints all conversation IDs.
func ListConversations(ctx context.Context, opts Options) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.List(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("(no conversations)")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// DeleteConversation removes a conversation's transcript and metadata.
func DeleteConversation(ctx context.Context, conversationID string, opts Options) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, conversationID); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %q\n", conversationID)
	return nil
}

// openStore opens the SQLite store directly, without a provider. Used by
// commands that only inspect local state.
func openStore(opts Options) (storage.ConversationStorage, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = os.Getenv("CONVO_DB_PATH")
	}
	if dbPath == "" {
		dbPath = conversation.DefaultDatabasePath
	}
	return storage.OpenSqlite(dbPath)
}
