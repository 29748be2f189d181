package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arcadialab/keygate/pkg/dpopx"
)

// Client talks to a keygate service. The zero HTTPClient gets a sane
// timeout; set Proofer to attach DPoP proofs to token requests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Proofer, when set, signs a DPoP proof for every token request.
	// Required when the server runs with key-binding enabled.
	Proofer *dpopx.Proofer
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) tokenEndpoint() string {
	return c.BaseURL + "/v1/oauth2/token"
}

// postForm sends a form-encoded POST to the token endpoint, attaching a
// DPoP proof when a Proofer is configured.
func (c *Client) postForm(ctx context.Context, form url.Values) (*http.Response, []byte, error) {
	endpoint := c.tokenEndpoint()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if c.Proofer != nil {
		proof, err := c.Proofer.Proof(http.MethodPost, endpoint, time.Now())
		if err != nil {
			return nil, nil, fmt.Errorf("authsdk: sign proof: %w", err)
		}
		req.Header.Set(dpopx.HeaderName, proof)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: read response: %w", err)
	}
	return resp, body, nil
}

// postJSON sends a JSON POST to the given path.
func (c *Client) postJSON(ctx context.Context, path string, v any) (*http.Response, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("authsdk: read response: %w", err)
	}
	return resp, body, nil
}

// getJSON fetches the given path and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("authsdk: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("authsdk: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authsdk: read response: %w", err)
	}
	if err := parseErrorResponse(resp, body); err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Metadata fetches the authorization server metadata document.
func (c *Client) Metadata(ctx context.Context) (*MetadataResponse, error) {
	var meta MetadataResponse
	if err := c.getJSON(ctx, "/.well-known/oauth-authorization-server", &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
