package bedrock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"claude-relay/model"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

func TestTranslateUsesStreamingAction(t *testing.T) {
	a := &Adaptor{}
	req := &relaymodel.ClaudeRequest{
		Model:     "claude-3-5-sonnet-latest",
		MaxTokens: 64,
		Messages:  []relaymodel.Message{{Role: relaymodel.RoleUser, Content: "hi"}},
	}
	m := &meta.Meta{Account: &model.Account{
		Key:    `{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret"}`,
		Region: "eu-west-1",
	}}

	wire, err := a.Translate(context.Background(), req, m)
	require.NoError(t, err)

	// Every upstream call streams; non-streaming client replies are
	// assembled from the frames by the relay.
	require.Equal(t,
		"https://bedrock-runtime.eu-west-1.amazonaws.com/model/anthropic.claude-3-5-sonnet-20241022-v2:0/invoke-with-response-stream",
		wire.URL)
	require.Equal(t, "application/vnd.amazon.eventstream", wire.Header.Get("Accept"))
	require.NotEmpty(t, wire.Header.Get("Authorization"))
}

func TestTranslateRejectsMalformedCredentials(t *testing.T) {
	a := &Adaptor{}
	req := &relaymodel.ClaudeRequest{
		Model:    "claude-3-5-sonnet-latest",
		Messages: []relaymodel.Message{{Role: relaymodel.RoleUser, Content: "hi"}},
	}
	m := &meta.Meta{Account: &model.Account{Key: "not-json"}}

	_, err := a.Translate(context.Background(), req, m)
	require.Error(t, err)
}
