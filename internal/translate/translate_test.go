package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-caption/internal/config"
)

func TestGoogleTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client") != "gtx" || q.Get("dt") != "t" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("sl") != "en" || q.Get("tl") != "zh-CN" || q.Get("q") != "hello there. bye" {
			t.Errorf("unexpected languages or text %v", q)
		}
		_, _ = w.Write([]byte(`[[["你好。","hello there.",null,null,10],["再见","bye",null,null,10]],null,"en"]`))
	}))
	defer srv.Close()

	reg := NewRegistry(NewGoogle(srv.URL, srv.Client()))
	got, err := reg.Translate(context.Background(), "hello there. bye", Options{
		Engine:     EngineGoogle,
		SourceLang: "english",
		TargetLang: "chinese (simplified)",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "你好。再见" {
		t.Fatalf("got %q", got)
	}
}

func TestGoogleMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	_, err := NewGoogle(srv.URL, srv.Client()).Translate(context.Background(), "hi", Options{SourceLang: "english", TargetLang: "french"})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestGoogleUnknownLanguage(t *testing.T) {
	_, err := NewGoogle("http://127.0.0.1:1", nil).Translate(context.Background(), "hi", Options{SourceLang: "klingon", TargetLang: "french"})
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
}

func TestDeepLTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/translate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key secret:fx" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req deeplRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.SourceLang != "EN" || req.TargetLang != "DE" || len(req.Text) != 1 || req.Text[0] != "good morning" {
			t.Errorf("unexpected payload %+v", req)
		}
		_, _ = w.Write([]byte(`{"translations":[{"detected_source_language":"EN","text":"Guten Morgen"}]}`))
	}))
	defer srv.Close()

	got, err := NewDeepL(srv.URL, srv.Client()).Translate(context.Background(), "good morning", Options{
		APIKey:     "secret:fx",
		SourceLang: "english",
		TargetLang: "german",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "Guten Morgen" {
		t.Fatalf("got %q", got)
	}
}

func TestDeepLForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewDeepL(srv.URL, srv.Client()).Translate(context.Background(), "hi", Options{APIKey: "bad", SourceLang: "english", TargetLang: "german"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDeepLHostFollowsKey(t *testing.T) {
	d := NewDeepL("", nil).(*deepl)
	if got := d.baseURL("abc:fx"); got != deeplFreeEndpoint {
		t.Fatalf("free key routed to %s", got)
	}
	if got := d.baseURL("abc"); got != deeplProEndpoint {
		t.Fatalf("pro key routed to %s", got)
	}
}

func TestOllamaTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Stream || req.Model != "qwen2.5" || len(req.Messages) != 2 {
			t.Errorf("unexpected payload %+v", req)
		}
		if !strings.Contains(req.Messages[0].Content, "into japanese.") {
			t.Errorf("system prompt missing target language: %q", req.Messages[0].Content)
		}
		if req.Messages[1].Content != "🔤 thank you 🔤" {
			t.Errorf("unexpected user message %q", req.Messages[1].Content)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  ありがとう\n"},"done":true}`))
	}))
	defer srv.Close()

	reg := NewRegistry(NewOllama(srv.Client(), 0.2))
	got, err := reg.Translate(context.Background(), "thank you", Options{
		Engine:     EngineOllama,
		TargetLang: "japanese",
		ServerURL:  strings.TrimPrefix(srv.URL, "http://"),
		Model:      "qwen2.5",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "ありがとう" {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryUnknownEngine(t *testing.T) {
	_, err := NewRegistry().Translate(context.Background(), "hi", Options{Engine: "Bing"})
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestRegistryValidatesPerEngine(t *testing.T) {
	reg := NewRegistry(NewGoogle("", nil), NewDeepL("", nil), NewOllama(nil, 0))
	if err := reg.Validate(Options{Engine: EngineDeepL, SourceLang: "english", TargetLang: "german"}); !errors.Is(err, ErrMissingOption) {
		t.Fatalf("expected missing api key, got %v", err)
	}
	if err := reg.Validate(Options{Engine: EngineOllama, ServerURL: "localhost:11434", TargetLang: "german"}); !errors.Is(err, ErrMissingOption) {
		t.Fatalf("expected missing model, got %v", err)
	}
	if err := reg.Validate(Options{Engine: EngineGoogle, SourceLang: "english", TargetLang: "german"}); err != nil {
		t.Fatalf("google options should validate: %v", err)
	}
	if got := reg.Engines(); len(got) != 3 || got[0] != EngineDeepL {
		t.Fatalf("unexpected engines %v", got)
	}
}

func TestResolveLanguage(t *testing.T) {
	if got := ResolveLanguage(EngineGoogle, "chinese (simplified)"); got != "chinese (simplified)" {
		t.Fatalf("supported language changed to %q", got)
	}
	if got := ResolveLanguage(EngineDeepL, "chinese (simplified)"); got != "bulgarian" {
		t.Fatalf("expected fallback to first DeepL language, got %q", got)
	}
	if _, err := Languages("Bing"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestServerURL(t *testing.T) {
	if got := serverURL("localhost:11434"); got != "http://localhost:11434" {
		t.Fatalf("got %q", got)
	}
	if got := serverURL("https://ollama.lan/"); got != "https://ollama.lan" {
		t.Fatalf("got %q", got)
	}
}

func TestMockEngine(t *testing.T) {
	reg := NewFromConfig(config.TranslationConfig{TimeoutMS: 1000, Mock: true})
	got, err := reg.Translate(context.Background(), " hello ", Options{Engine: EngineMock, TargetLang: "german"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "[german] hello" {
		t.Fatalf("got %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMock(time.Second).Translate(ctx, "hello", Options{TargetLang: "german"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if names, err := Languages(EngineMock); err != nil || len(names) == 0 {
		t.Fatalf("mock languages: %v %v", names, err)
	}
}
