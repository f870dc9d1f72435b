package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	deeplFreeEndpoint = "https://api-free.deepl.com"
	deeplProEndpoint  = "https://api.deepl.com"
)

type deepl struct {
	endpoint string
	client   *http.Client
}

// NewDeepL uses endpoint when set; otherwise the host follows the key type.
func NewDeepL(endpoint string, client *http.Client) Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &deepl{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (d *deepl) Name() string { return EngineDeepL }

func (d *deepl) Validate(opts Options) error {
	if err := requireOption(EngineDeepL, "api key", opts.APIKey); err != nil {
		return err
	}
	if err := requireOption(EngineDeepL, "source language", opts.SourceLang); err != nil {
		return err
	}
	return requireOption(EngineDeepL, "target language", opts.TargetLang)
}

func (d *deepl) baseURL(key string) string {
	if d.endpoint != "" {
		return d.endpoint
	}
	if strings.HasSuffix(key, ":fx") {
		return deeplFreeEndpoint
	}
	return deeplProEndpoint
}

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

func (d *deepl) Translate(ctx context.Context, text string, opts Options) (string, error) {
	source, err := Code(EngineDeepL, opts.SourceLang)
	if err != nil {
		return "", err
	}
	target, err := Code(EngineDeepL, opts.TargetLang)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(deeplRequest{
		Text:       []string{text},
		SourceLang: strings.ToUpper(source),
		TargetLang: strings.ToUpper(target),
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL(opts.APIKey)+"/v2/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+opts.APIKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("deepl: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: deepl returned %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("deepl returned status %s", resp.Status)
	}

	var out deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(out.Translations) == 0 {
		return "", fmt.Errorf("%w: deepl returned no translations", ErrBadResponse)
	}
	return out.Translations[0].Text, nil
}
