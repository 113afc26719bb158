package kiro

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"claude-relay/common/logger"
	"claude-relay/model"
)

// refreshEndpoint mints a fresh access token from the long-lived refresh
// token (social-auth flow).
const refreshEndpoint = "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken"

// refreshSkew refreshes tokens slightly before their stated expiry so an
// attempt never starts with a token about to lapse mid-stream.
const refreshSkew = 5 * time.Minute

// credential is the token set stored in Account.Key for this provider.
type credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
	ProfileArn   string `json:"profileArn,omitempty"`
}

func (c *credential) expiring() bool {
	if c.ExpiresAt == "" {
		return false
	}
	expiresAt, err := time.Parse(time.RFC3339, c.ExpiresAt)
	if err != nil {
		expiresAt, err = time.Parse("2006-01-02T15:04:05.000Z", c.ExpiresAt)
		if err != nil {
			return true
		}
	}
	return time.Now().After(expiresAt.Add(-refreshSkew))
}

var refreshClient = &http.Client{Timeout: 30 * time.Second}

// refreshIfExpiring returns a usable credential for the account, minting and
// persisting a fresh token set when the stored one is about to expire.
func refreshIfExpiring(ctx context.Context, account *model.Account) (*credential, error) {
	var cred credential
	if err := json.Unmarshal([]byte(account.Key), &cred); err != nil {
		return nil, errors.Wrap(err, "parse kiro credential")
	}
	if !cred.expiring() {
		return &cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, errors.New("kiro credential expired and no refresh token stored")
	}

	body, err := json.Marshal(map[string]string{"refreshToken": cred.RefreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "marshal refresh request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := refreshClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call refresh endpoint")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read refresh response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("refresh endpoint returned %d: %s", resp.StatusCode, respBody)
	}

	var refreshed credential
	if err := json.Unmarshal(respBody, &refreshed); err != nil {
		return nil, errors.Wrap(err, "parse refresh response")
	}
	if refreshed.AccessToken == "" {
		return nil, errors.New("refresh response carried no access token")
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	if refreshed.ProfileArn == "" {
		refreshed.ProfileArn = cred.ProfileArn
	}

	raw, err := json.Marshal(&refreshed)
	if err != nil {
		return nil, errors.Wrap(err, "marshal refreshed credential")
	}
	account.Key = string(raw)
	if err := model.UpdateAccountKey(account.Id, account.Key); err != nil {
		// Persisting is best effort; the in-memory token still serves this
		// request and the next refresh retries the write.
		logger.Logger.Warn("persist refreshed kiro token",
			zap.Int("account", account.Id), zap.Error(err))
	}
	logger.Logger.Info("kiro token refreshed", zap.Int("account", account.Id))
	return &refreshed, nil
}
