package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	cases := map[string]ProviderType{
		"openai":    ProviderOpenAI,
		"GPT":       ProviderOpenAI,
		"anthropic": ProviderAnthropic,
		"claude":    ProviderAnthropic,
		"deepseek":  ProviderDeepSeek,
		"gemini":    ProviderGemini,
		"google":    ProviderGemini,
	}

	for input, want := range cases {
		got, err := ParseProviderType(input)
		if err != nil {
			t.Errorf("ParseProviderType(%q) failed: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseProviderType("mystery"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviderBuilderDefaults(t *testing.T) {
	provider, err := ProviderOpenAI.APIKey("sk-test")
	if err != nil {
		t.Fatalf("APIKey failed: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("expected openai, got %s", provider.Name())
	}
	if provider.Model() != ModelOpenAIGPT52 {
		t.Errorf("expected default model %s, got %s", ModelOpenAIGPT52, provider.Model())
	}
}

func TestProviderBuilderCustomModel(t *testing.T) {
	provider, err := ProviderAnthropic.Model(ModelAnthropicClaudeHaiku4).APIKey("sk-ant-test")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if provider.Model() != ModelAnthropicClaudeHaiku4 {
		t.Errorf("expected %s, got %s", ModelAnthropicClaudeHaiku4, provider.Model())
	}
}

func TestProviderBuilderFromEnvMissingKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")

	if _, err := ProviderDeepSeek.FromEnv(); err == nil {
		t.Error("expected error when API key env var is unset")
	}
}

func TestRemoteServiceErrorFormat(t *testing.T) {
	cause := errors.New("connection refused")
	err := remoteErr("openai", 429, "rate limited", cause)

	var remote *RemoteServiceError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteServiceError, got %T", err)
	}
	if remote.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", remote.StatusCode)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in message, got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected error to unwrap to cause")
	}
}
