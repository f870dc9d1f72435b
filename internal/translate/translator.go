// Package translate turns caption text into another language through one of
// several interchangeable engines.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-caption/internal/config"
)

const (
	EngineGoogle = "Google"
	EngineDeepL  = "DeepL"
	EngineOllama = "Ollama"
	EngineMock   = "Mock"
)

var (
	ErrUnknownEngine   = errors.New("unknown translation engine")
	ErrUnknownLanguage = errors.New("unsupported language")
	ErrMissingOption   = errors.New("missing translation option")
	ErrUnauthorized    = errors.New("translation service rejected credentials")
	ErrBadResponse     = errors.New("malformed translation response")
)

// Options carries the engine selection and per-engine parameters. Languages
// are display names such as "english".
type Options struct {
	Engine     string
	SourceLang string
	TargetLang string
	APIKey     string
	ServerURL  string
	Model      string
}

type Translator interface {
	Translate(ctx context.Context, text string, opts Options) (string, error)
}

// Engine is a single translation provider.
type Engine interface {
	Translator
	Name() string
	// Validate reports the first option this engine needs but did not get.
	Validate(opts Options) error
}

// Registry dispatches on Options.Engine.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// NewFromConfig wires the Google, DeepL and Ollama engines, plus the mock
// engine when enabled.
func NewFromConfig(cfg config.TranslationConfig) *Registry {
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	r := NewRegistry(
		NewGoogle(cfg.GoogleEndpoint, client),
		NewDeepL(cfg.DeepLEndpoint, client),
		NewOllama(client, cfg.Temperature),
	)
	if cfg.Mock {
		r.Register(NewMock(20 * time.Millisecond))
	}
	return r
}

func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e, nil
}

// Validate checks opts against the selected engine without calling it.
func (r *Registry) Validate(opts Options) error {
	e, err := r.lookup(opts.Engine)
	if err != nil {
		return err
	}
	return e.Validate(opts)
}

func (r *Registry) Translate(ctx context.Context, text string, opts Options) (string, error) {
	e, err := r.lookup(opts.Engine)
	if err != nil {
		return "", err
	}
	if err := e.Validate(opts); err != nil {
		return "", err
	}
	return e.Translate(ctx, text, opts)
}

func requireOption(engine, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s requires %s", ErrMissingOption, engine, name)
	}
	return nil
}
