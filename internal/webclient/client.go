package webclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// authTimeout bounds every call against the Web backend's auth endpoints
// (/login, /refresh), per spec.md §5 "Cancellation & timeouts".
const authTimeout = 5 * time.Second

// APIRequestError reports a non-2xx response from the Web backend,
// mirroring original_source/judger/utils/api_client.py's APIRequestError.
type APIRequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIRequestError) Error() string {
	return fmt.Sprintf("web backend %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client is a bearer+refresh authenticated HTTP client for the Web backend.
type Client struct {
	BaseURL    string // e.g. "http://10.0.0.1:8000"
	Account    string
	Password   string
	TokenCache *TokenCache
	HTTPClient *http.Client
}

// NewClient builds a Client that authenticates through tokenCache, whose
// role ("manager" or "executor") decides which processes share its tokens.
func NewClient(baseURL, account, password string, tokenCache *TokenCache) *Client {
	return &Client{
		BaseURL:    baseURL,
		Account:    account,
		Password:   password,
		TokenCache: tokenCache,
		HTTPClient: &http.Client{},
	}
}

// login exchanges account/password for a fresh token pair via POST /login.
func (c *Client) login(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"account": c.Account, "password": c.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIRequestError{Method: "POST", Path: "/login", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var toks Tokens
	if err := json.Unmarshal(respBody, &toks); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}
	return c.TokenCache.Save(toks)
}

// refreshTokens tries POST /refresh with the current refresh token as
// bearer; on any failure it falls back to a full re-login, matching
// token_manager.py's refresh_tokens().
func (c *Client) refreshTokens(ctx context.Context) error {
	toks, err := c.TokenCache.Load()
	if err != nil || toks == nil || toks.RefreshToken == "" {
		return c.login(ctx)
	}

	reqCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+"/refresh", nil)
	if err != nil {
		return c.login(ctx)
	}
	req.Header.Set("Authorization", "Bearer "+toks.RefreshToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return c.login(ctx)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.login(ctx)
	}

	respBody, _ := io.ReadAll(resp.Body)
	var newToks Tokens
	if err := json.Unmarshal(respBody, &newToks); err != nil {
		return c.login(ctx)
	}
	return c.TokenCache.Save(newToks)
}

// accessToken returns the current access token, logging in first if none is
// cached yet.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	toks, err := c.TokenCache.Load()
	if err != nil {
		return "", err
	}
	if toks == nil || toks.AccessToken == "" {
		if err := c.login(ctx); err != nil {
			return "", err
		}
		toks, err = c.TokenCache.Load()
		if err != nil {
			return "", err
		}
	}
	return toks.AccessToken, nil
}

// doOnce performs a single bearer-authenticated request and returns the raw
// response (caller must close Body).
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.HTTPClient.Do(req)
}

// do performs a bearer-authenticated request, refreshing and retrying
// exactly once on a 401, per spec.md §6.3.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	resp, err := c.doOnce(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refreshTokens(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: refresh after 401: %w", method, path, err)
	}

	resp, err = c.doOnce(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s (retry): %w", method, path, err)
	}
	return resp, nil
}

// Get performs a bearer-authenticated GET and decodes the JSON response
// into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIRequestError{Method: "GET", Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode GET %s response: %w", path, err)
	}
	return nil
}

// PostJSON performs a bearer-authenticated POST with a JSON body, decoding
// the JSON response into out (out may be nil to ignore the body).
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode POST %s body: %w", path, err)
		}
	}

	resp, err := c.do(ctx, http.MethodPost, path, encoded)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIRequestError{Method: "POST", Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode POST %s response: %w", path, err)
	}
	return nil
}

// DownloadTo streams a bearer-authenticated GET response body to destPath,
// used for the submission/template zip downloads (spec.md §6.3).
func (c *Client) DownloadTo(ctx context.Context, path, destPath string) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIRequestError{Method: "GET", Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("stream download to %s: %w", destPath, err)
	}
	return nil
}
