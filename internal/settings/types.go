package settings

import (
	"encoding/json"
	"math"
)

// UserSettings is the typed view of the "user_settings" section.
type UserSettings struct {
	Engine                string `json:"engine"`
	SourceLang            string `json:"source_lang"`
	TargetLang            string `json:"target_lang"`
	ModelDir              string `json:"model_dir"`
	TranscribeDeviceIndex int    `json:"transcribe_device_index"`
	MonitorPosition       [2]int `json:"monitor_position"`
	DeepLKey              string `json:"deepl_key"`
	OllamaURL             string `json:"ollama_url"`
	OllamaModel           string `json:"ollama_model"`
}

// DefaultDocument returns a fresh copy of the default settings document.
func DefaultDocument() map[string]any {
	return map[string]any{
		sectionKey: map[string]any{
			"engine":                  "Google",
			"source_lang":             "english",
			"target_lang":             "chinese (simplified)",
			"model_dir":               "vosk-model-small-en-us-0.15",
			"transcribe_device_index": float64(0),
			"monitor_position":        []any{float64(0), float64(0)},
			"deepl_key":               "",
			"ollama_url":              "localhost:11434",
			"ollama_model":            "",
		},
	}
}

func (u UserSettings) toMap() map[string]any {
	return map[string]any{
		"engine":                  u.Engine,
		"source_lang":             u.SourceLang,
		"target_lang":             u.TargetLang,
		"model_dir":               u.ModelDir,
		"transcribe_device_index": float64(u.TranscribeDeviceIndex),
		"monitor_position":        []any{float64(u.MonitorPosition[0]), float64(u.MonitorPosition[1])},
		"deepl_key":               u.DeepLKey,
		"ollama_url":              u.OllamaURL,
		"ollama_model":            u.OllamaModel,
	}
}

func fromDocument(doc map[string]any) UserSettings {
	section, _ := doc[sectionKey].(map[string]any)
	var u UserSettings
	u.Engine, _ = section["engine"].(string)
	u.SourceLang, _ = section["source_lang"].(string)
	u.TargetLang, _ = section["target_lang"].(string)
	u.ModelDir, _ = section["model_dir"].(string)
	u.DeepLKey, _ = section["deepl_key"].(string)
	u.OllamaURL, _ = section["ollama_url"].(string)
	u.OllamaModel, _ = section["ollama_model"].(string)
	if idx, ok := toInt(section["transcribe_device_index"]); ok {
		u.TranscribeDeviceIndex = idx
	}
	// Arrays concatenate on merge, so the stored pair is the trailing one.
	if pos, ok := section["monitor_position"].([]any); ok && len(pos) >= 2 {
		x, _ := toInt(pos[len(pos)-2])
		y, _ := toInt(pos[len(pos)-1])
		u.MonitorPosition = [2]int{x, y}
	}
	return u
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
