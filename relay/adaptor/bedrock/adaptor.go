// Package bedrock relays canonical requests to Anthropic models hosted on
// AWS Bedrock. Requests are signed with SigV4 and responses arrive as binary
// event-stream frames whose payloads wrap base64-encoded Anthropic events.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"

	"claude-relay/model"
	"claude-relay/relay/adaptor"
	"claude-relay/relay/decoder"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

const anthropicVersion = "bedrock-2023-05-31"

// AwsModelIDMap maps friendly Anthropic model names to Bedrock model IDs.
// Unknown names pass through untouched so inference-profile ARNs and already
// qualified IDs keep working.
var AwsModelIDMap = map[string]string{
	"claude-3-5-sonnet-latest": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku-latest":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-7-sonnet-latest": "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-sonnet-4-0":        "us.anthropic.claude-sonnet-4-20250514-v1:0",
	"claude-opus-4-0":          "us.anthropic.claude-opus-4-20250514-v1:0",
}

// wireBody is the Bedrock-native Anthropic body. The model moves out of the
// body into the URL path, and there is no stream flag: the action name in the
// URL selects streaming.
type wireBody struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []relaymodel.Message     `json:"messages"`
	Temperature      *float64                 `json:"temperature,omitempty"`
	TopP             *float64                 `json:"top_p,omitempty"`
	TopK             *int                     `json:"top_k,omitempty"`
	StopSequences    []string                 `json:"stop_sequences,omitempty"`
	Tools            []map[string]any         `json:"tools,omitempty"`
}

// Adaptor implements the Bedrock backend.
type Adaptor struct{}

func (a *Adaptor) Provider() string { return model.ProviderBedrock }

// FallbackURL is empty: Bedrock endpoints are regional and the region is part
// of the credential, so there is no documented cross-account fallback.
func (a *Adaptor) FallbackURL() string { return "" }

func (a *Adaptor) Translate(ctx context.Context, req *relaymodel.ClaudeRequest, m *meta.Meta) (*adaptor.WireRequest, error) {
	var creds Credentials
	if err := json.Unmarshal([]byte(m.Account.Key), &creds); err != nil {
		return nil, errors.Wrap(err, "parse bedrock credentials")
	}
	region := m.Account.Region
	if region == "" {
		region = "us-east-1"
	}

	m.ActualModel = mapModelID(req.Model)

	body := wireBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		System:           req.SystemText(),
		Messages:         relaymodel.MergeAdjacentRoles(req.Messages),
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		TopK:             req.TopK,
		StopSequences:    req.StopSequences,
		Tools:            convertTools(req.Tools),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal bedrock body")
	}

	baseURL := m.Account.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}
	// Upstream responses always stream; non-streaming client replies are
	// assembled from the event stream by the relay itself.
	url := fmt.Sprintf("%s/model/%s/invoke-with-response-stream", baseURL, m.ActualModel)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/vnd.amazon.eventstream")

	signed, err := Sign(http.MethodPost, url, header, payload, creds, region, "bedrock", time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "sign bedrock request")
	}

	return &adaptor.WireRequest{
		Method: http.MethodPost,
		URL:    url,
		Header: signed,
		Body:   payload,
	}, nil
}

func (a *Adaptor) NewDecoder(m *meta.Meta) decoder.StreamDecoder {
	return newStreamDecoder()
}

func mapModelID(requestModel string) string {
	if awsModelID, ok := AwsModelIDMap[requestModel]; ok {
		return awsModelID
	}
	return requestModel
}

// convertTools reshapes canonical tool specs into the Bedrock envelope. A
// missing schema becomes the empty-object schema the service insists on.
func convertTools(tools []relaymodel.Tool) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		schema := tool.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": schema,
		})
	}
	return out
}
