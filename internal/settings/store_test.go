package settings

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadMissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "user_config.json")
	store := NewStore(path, newLogger())

	got := store.Load()
	if got.Engine != "Google" || got.SourceLang != "english" || got.TargetLang != "chinese (simplified)" {
		t.Fatalf("unexpected defaults %+v", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults written to disk: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_config.json")
	if err := os.WriteFile(path, []byte(`{"user_settings":{"engine":"DeepL"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewStore(path, newLogger())

	got := store.Load()
	if got.Engine != "DeepL" {
		t.Fatalf("expected engine override, got %q", got.Engine)
	}
	want := fromDocument(store.defaults())
	want.Engine = "DeepL"
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

func TestLoadMalformedFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_config.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewStore(path, newLogger())

	got := store.Load()
	if got.Engine != "Google" {
		t.Fatalf("expected default engine, got %q", got.Engine)
	}
}

func TestLoadResolvesModelDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user_config.json")
	if err := os.WriteFile(path, []byte(`{"user_settings":{"model_dir":"models/en"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got := NewStore(path, newLogger()).Load()
	want, _ := filepath.Abs(filepath.Join(dir, "models/en"))
	if got.ModelDir != want {
		t.Fatalf("model dir = %q, want %q", got.ModelDir, want)
	}
}

func TestSaveValidation(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "user_config.json"), newLogger())
	store.Load()

	err := store.SaveDocument(map[string]any{sectionKey: map[string]any{"engine": "Google"}})
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected missing required error, got %v", err)
	}

	bad := store.Current()
	bad.TranscribeDeviceIndex = -1
	if err := store.Save(bad); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected invalid device error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_config.json")
	store := NewStore(path, newLogger())
	current := store.Load()

	current.Engine = "Ollama"
	current.OllamaModel = "qwen2.5:7b"
	current.TranscribeDeviceIndex = 1
	current.MonitorPosition = [2]int{120, 640}
	if err := store.Save(current); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(current); err != nil {
		t.Fatalf("second save: %v", err)
	}

	reloaded := NewStore(path, newLogger()).Load()
	if reloaded != current {
		t.Fatalf("reloaded = %+v, want %+v", reloaded, current)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if pos := doc[sectionKey]["monitor_position"].([]any); len(pos) != 2 {
		t.Fatalf("expected stored position to stay a pair, got %v", pos)
	}
}

func TestDeepMerge(t *testing.T) {
	base := map[string]any{
		"a": map[string]any{"x": 1.0, "y": 2.0},
		"l": []any{1.0},
		"s": "old",
	}
	deepMerge(base, map[string]any{
		"a": map[string]any{"y": 3.0},
		"l": []any{2.0},
		"s": "new",
		"n": map[string]any{"k": "v"},
	})
	a := base["a"].(map[string]any)
	if a["x"] != 1.0 || a["y"] != 3.0 {
		t.Fatalf("unexpected nested merge %v", a)
	}
	if l := base["l"].([]any); len(l) != 2 || l[0] != 1.0 || l[1] != 2.0 {
		t.Fatalf("expected concatenated list, got %v", l)
	}
	if base["s"] != "new" {
		t.Fatalf("expected scalar overwrite")
	}
	if base["n"].(map[string]any)["k"] != "v" {
		t.Fatalf("expected new nested map")
	}
}

func TestEngineOptions(t *testing.T) {
	u := UserSettings{Engine: "DeepL", SourceLang: "english", TargetLang: "chinese (simplified)", DeepLKey: "k:fx", OllamaURL: "localhost:11434"}
	opts := u.EngineOptions()
	if opts.APIKey != "k:fx" || opts.ServerURL != "" {
		t.Fatalf("unexpected credentials %+v", opts)
	}
	if opts.SourceLang != "english" || opts.TargetLang != "bulgarian" {
		t.Fatalf("expected unsupported target to fall back, got %+v", opts)
	}

	u.Engine = "Ollama"
	u.OllamaModel = "qwen2.5"
	opts = u.EngineOptions()
	if opts.ServerURL != "localhost:11434" || opts.Model != "qwen2.5" || opts.APIKey != "" {
		t.Fatalf("unexpected ollama options %+v", opts)
	}
	if opts.TargetLang != "chinese (simplified)" {
		t.Fatalf("ollama target = %q", opts.TargetLang)
	}
}
