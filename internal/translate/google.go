package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"

type google struct {
	endpoint string
	client   *http.Client
}

func NewGoogle(endpoint string, client *http.Client) Engine {
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &google{endpoint: endpoint, client: client}
}

func (g *google) Name() string { return EngineGoogle }

func (g *google) Validate(opts Options) error {
	if err := requireOption(EngineGoogle, "source language", opts.SourceLang); err != nil {
		return err
	}
	return requireOption(EngineGoogle, "target language", opts.TargetLang)
}

func (g *google) Translate(ctx context.Context, text string, opts Options) (string, error) {
	source, err := Code(EngineGoogle, opts.SourceLang)
	if err != nil {
		return "", err
	}
	target, err := Code(EngineGoogle, opts.TargetLang)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", source)
	query.Set("tl", target)
	query.Set("dt", "t")
	query.Set("q", text)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("google translate returned status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read google response: %w", err)
	}
	return parseGoogle(body)
}

// parseGoogle joins the translated segments of a gtx response, which looks
// like [[["translated","original",...],...],...].
func parseGoogle(body []byte) (string, error) {
	var root []any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(root) == 0 {
		return "", fmt.Errorf("%w: empty google response", ErrBadResponse)
	}
	segments, ok := root[0].([]any)
	if !ok {
		return "", fmt.Errorf("%w: google response has no segments", ErrBadResponse)
	}
	var sb strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String(), nil
}
