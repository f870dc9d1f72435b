package settings

import "github.com/loqalabs/loqa-caption/internal/translate"

// EngineOptions derives the translation options the pipeline reads. Language
// names the engine does not know fall back to its first language.
func (u UserSettings) EngineOptions() translate.Options {
	opts := translate.Options{
		Engine:     u.Engine,
		SourceLang: u.SourceLang,
		TargetLang: u.TargetLang,
	}
	switch u.Engine {
	case translate.EngineDeepL:
		opts.APIKey = u.DeepLKey
	case translate.EngineOllama:
		opts.ServerURL = u.OllamaURL
		opts.Model = u.OllamaModel
	}
	if _, err := translate.Languages(u.Engine); err == nil {
		opts.SourceLang = translate.ResolveLanguage(u.Engine, u.SourceLang)
		opts.TargetLang = translate.ResolveLanguage(u.Engine, u.TargetLang)
	}
	return opts
}
