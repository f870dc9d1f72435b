package translate

import (
	"fmt"
	"sort"
	"strings"
)

var googleLanguages = map[string]string{
	"afrikaans":             "af",
	"albanian":              "sq",
	"amharic":               "am",
	"arabic":                "ar",
	"armenian":              "hy",
	"assamese":              "as",
	"aymara":                "ay",
	"azerbaijani":           "az",
	"bambara":               "bm",
	"basque":                "eu",
	"belarusian":            "be",
	"bengali":               "bn",
	"bhojpuri":              "bho",
	"bosnian":               "bs",
	"bulgarian":             "bg",
	"catalan":               "ca",
	"cebuano":               "ceb",
	"chichewa":              "ny",
	"chinese (simplified)":  "zh-CN",
	"chinese (traditional)": "zh-TW",
	"corsican":              "co",
	"croatian":              "hr",
	"czech":                 "cs",
	"danish":                "da",
	"dhivehi":               "dv",
	"dogri":                 "doi",
	"dutch":                 "nl",
	"english":               "en",
	"esperanto":             "eo",
	"estonian":              "et",
	"ewe":                   "ee",
	"filipino":              "tl",
	"finnish":               "fi",
	"french":                "fr",
	"frisian":               "fy",
	"galician":              "gl",
	"georgian":              "ka",
	"german":                "de",
	"greek":                 "el",
	"guarani":               "gn",
	"gujarati":              "gu",
	"haitian creole":        "ht",
	"hausa":                 "ha",
	"hawaiian":              "haw",
	"hebrew":                "iw",
	"hindi":                 "hi",
	"hmong":                 "hmn",
	"hungarian":             "hu",
	"icelandic":             "is",
	"igbo":                  "ig",
	"ilocano":               "ilo",
	"indonesian":            "id",
	"irish":                 "ga",
	"italian":               "it",
	"japanese":              "ja",
	"javanese":              "jw",
	"kannada":               "kn",
	"kazakh":                "kk",
	"khmer":                 "km",
	"kinyarwanda":           "rw",
	"konkani":               "gom",
	"korean":                "ko",
	"krio":                  "kri",
	"kurdish (kurmanji)":    "ku",
	"kurdish (sorani)":      "ckb",
	"kyrgyz":                "ky",
	"lao":                   "lo",
	"latin":                 "la",
	"latvian":               "lv",
	"lingala":               "ln",
	"lithuanian":            "lt",
	"luganda":               "lg",
	"luxembourgish":         "lb",
	"macedonian":            "mk",
	"maithili":              "mai",
	"malagasy":              "mg",
	"malay":                 "ms",
	"malayalam":             "ml",
	"maltese":               "mt",
	"maori":                 "mi",
	"marathi":               "mr",
	"meiteilon (manipuri)":  "mni-Mtei",
	"mizo":                  "lus",
	"mongolian":             "mn",
	"myanmar":               "my",
	"nepali":                "ne",
	"norwegian":             "no",
	"odia (oriya)":          "or",
	"oromo":                 "om",
	"pashto":                "ps",
	"persian":               "fa",
	"polish":                "pl",
	"portuguese":            "pt",
	"punjabi":               "pa",
	"quechua":               "qu",
	"romanian":              "ro",
	"russian":               "ru",
	"samoan":                "sm",
	"sanskrit":              "sa",
	"scots gaelic":          "gd",
	"sepedi":                "nso",
	"serbian":               "sr",
	"sesotho":               "st",
	"shona":                 "sn",
	"sindhi":                "sd",
	"sinhala":               "si",
	"slovak":                "sk",
	"slovenian":             "sl",
	"somali":                "so",
	"spanish":               "es",
	"sundanese":             "su",
	"swahili":               "sw",
	"swedish":               "sv",
	"tajik":                 "tg",
	"tamil":                 "ta",
	"tatar":                 "tt",
	"telugu":                "te",
	"thai":                  "th",
	"tigrinya":              "ti",
	"tsonga":                "ts",
	"turkish":               "tr",
	"turkmen":               "tk",
	"twi":                   "ak",
	"ukrainian":             "uk",
	"urdu":                  "ur",
	"uyghur":                "ug",
	"uzbek":                 "uz",
	"vietnamese":            "vi",
	"welsh":                 "cy",
	"xhosa":                 "xh",
	"yiddish":               "yi",
	"yoruba":                "yo",
	"zulu":                  "zu",
}

var deeplLanguages = map[string]string{
	"bulgarian":  "bg",
	"chinese":    "zh",
	"czech":      "cs",
	"danish":     "da",
	"dutch":      "nl",
	"english":    "en",
	"estonian":   "et",
	"finnish":    "fi",
	"french":     "fr",
	"german":     "de",
	"greek":      "el",
	"hungarian":  "hu",
	"indonesian": "id",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"latvian":    "lv",
	"lithuanian": "lt",
	"norwegian":  "nb",
	"polish":     "pl",
	"portuguese": "pt",
	"romanian":   "ro",
	"russian":    "ru",
	"slovak":     "sk",
	"slovenian":  "sl",
	"spanish":    "es",
	"swedish":    "sv",
	"turkish":    "tr",
	"ukrainian":  "uk",
}

func table(engine string) (map[string]string, error) {
	switch engine {
	case EngineGoogle, EngineOllama, EngineMock:
		return googleLanguages, nil
	case EngineDeepL:
		return deeplLanguages, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
}

// Languages returns the sorted display names the engine understands.
func Languages(engine string) ([]string, error) {
	t, err := table(engine)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Code maps a display name to the engine's language code.
func Code(engine, name string) (string, error) {
	t, err := table(engine)
	if err != nil {
		return "", err
	}
	code, ok := t[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %s does not know %q", ErrUnknownLanguage, engine, name)
	}
	return code, nil
}

// ResolveLanguage keeps name when the engine supports it and otherwise falls
// back to the engine's first language.
func ResolveLanguage(engine, name string) string {
	if _, err := Code(engine, name); err == nil {
		return name
	}
	names, err := Languages(engine)
	if err != nil || len(names) == 0 {
		return name
	}
	return names[0]
}
