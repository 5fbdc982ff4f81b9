package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPScoreOracle verifies proof tokens against an external scoring
// service over HTTP. The service returns a success flag and a numeric
// score for the submitted token.
type HTTPScoreOracle struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPScoreOracle creates an oracle client for the given endpoint.
func NewHTTPScoreOracle(baseURL, apiKey string) *HTTPScoreOracle {
	return &HTTPScoreOracle{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetHTTPClient overrides the HTTP client, used in tests.
func (o *HTTPScoreOracle) SetHTTPClient(client *http.Client) {
	o.httpClient = client
}

type oracleResponse struct {
	Success bool     `json:"success"`
	Score   float64  `json:"score"`
	Errors  []string `json:"error-codes"`
}

// Verify submits the token to the scoring service.
func (o *HTTPScoreOracle) Verify(ctx context.Context, address, token string) (bool, float64, error) {
	form := url.Values{}
	form.Set("secret", o.apiKey)
	form.Set("response", token)
	form.Set("remoteip", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, 0, fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("oracle request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // nolint:errcheck // cleanup in defer
	}()

	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var body oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, 0, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	return body.Success, body.Score, nil
}
