package config

import (
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.API.BaseURL != "http://localhost:8000" {
		t.Errorf("expected default base URL, got %q", settings.API.BaseURL)
	}
	if settings.Feeds.SearchDebounce != 500*time.Millisecond {
		t.Errorf("expected 500ms debounce, got %v", settings.Feeds.SearchDebounce)
	}
	if settings.Feeds.ClonesLimit != 12 {
		t.Errorf("expected clones limit 12, got %d", settings.Feeds.ClonesLimit)
	}
	if settings.API.CookieName != "clonr_session" {
		t.Errorf("expected cookie clonr_session, got %q", settings.API.CookieName)
	}
}

func TestNewTrimsBaseURL(t *testing.T) {
	t.Setenv("CLONR_API_URL", "https://api.clonr.test/")

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.API.BaseURL != "https://api.clonr.test" {
		t.Errorf("expected trailing slash trimmed, got %q", settings.API.BaseURL)
	}
}

func TestNewRejectsNonHTTPBaseURL(t *testing.T) {
	t.Setenv("CLONR_API_URL", "ftp://example.com")

	if _, err := New(); err == nil {
		t.Error("expected error for non-http base URL")
	}
}

func TestNewWithInvalidEnvVar(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"limit not a number", "CLONR_MESSAGES_LIMIT", "lots"},
		{"limit zero", "CLONR_CLONES_LIMIT", "0"},
		{"limit above page maximum", "CLONR_CLONES_LIMIT", "150"},
		{"negative convo limit", "CLONR_SIDEBAR_CONVO_LIMIT", "-1"},
		{"bad duration", "CLONR_SEARCH_DEBOUNCE", "soon"},
		{"negative duration", "CLONR_API_TIMEOUT", "-1s"},
		{"bad rps", "CLONR_API_RPS", "fast"},
		{"negative rps", "CLONR_API_RPS", "-2"},
		{"bad log level", "CLONR_LOG_LEVEL", "chatty"},
		{"bad max tokens", "LLM_MAX_TOKENS", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := New(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestNewRateLimitNeedsBurst(t *testing.T) {
	t.Setenv("CLONR_API_RPS", "5")
	t.Setenv("CLONR_API_BURST", "0")

	if _, err := New(); err == nil {
		t.Error("expected error for zero burst with rate limiting")
	}
}

func TestNewReadsOverrides(t *testing.T) {
	t.Setenv("CLONR_SEARCH_DEBOUNCE", "250ms")
	t.Setenv("CLONR_MESSAGES_LIMIT", "50")
	t.Setenv("CLONR_LLM_PROVIDER", "Anthropic")

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Feeds.SearchDebounce != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", settings.Feeds.SearchDebounce)
	}
	if settings.Feeds.MessagesLimit != 50 {
		t.Errorf("expected 50, got %d", settings.Feeds.MessagesLimit)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider lowercased, got %q", settings.LLM.Provider)
	}
}

func TestNewAllowsUnlimitedConvoLimit(t *testing.T) {
	t.Setenv("CLONR_SIDEBAR_CONVO_LIMIT", "0")
	t.Setenv("CLONR_MESSAGES_LIMIT", "100")

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Feeds.SidebarConvoLimit != 0 {
		t.Errorf("expected convo limit 0, got %d", settings.Feeds.SidebarConvoLimit)
	}
	if settings.Feeds.MessagesLimit != MaxPageLimit {
		t.Errorf("expected messages limit %d, got %d", MaxPageLimit, settings.Feeds.MessagesLimit)
	}
}

func TestMustNewPanics(t *testing.T) {
	t.Setenv("CLONR_MESSAGES_LIMIT", "not-a-number")

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid environment")
		}
	}()
	MustNew()
}
