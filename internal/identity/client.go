package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultIdentityBaseURL = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenBaseURL    = "https://securetoken.googleapis.com/v1"
)

// Client talks to the provider's REST endpoints: account operations on the
// identity toolkit host, token refresh on the secure-token host.
type Client struct {
	apiKey          string
	identityBaseURL string
	tokenBaseURL    string
	httpClient      *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURLs overrides the provider endpoints (used by tests).
func WithBaseURLs(identityBase, tokenBase string) ClientOption {
	return func(c *Client) {
		if identityBase != "" {
			c.identityBaseURL = strings.TrimRight(identityBase, "/")
		}
		if tokenBase != "" {
			c.tokenBaseURL = strings.TrimRight(tokenBase, "/")
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a provider client for the given API key.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("identity: api key is not configured")
	}
	c := &Client{
		apiKey:          apiKey,
		identityBaseURL: defaultIdentityBaseURL,
		tokenBaseURL:    defaultTokenBaseURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ Provider = (*Client)(nil)

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges email/password credentials for a token pair.
func (c *Client) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	var resp signInResponse
	err := c.post(ctx, c.identityBaseURL+"/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return Credentials{}, err
	}
	return credentialsFrom(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// SignUp creates a provider account and returns its first token pair.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (Credentials, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	if displayName != "" {
		payload["displayName"] = displayName
	}
	var resp signInResponse
	if err := c.post(ctx, c.identityBaseURL+"/accounts:signUp", payload, &resp); err != nil {
		return Credentials{}, err
	}
	return credentialsFrom(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// Refresh rotates an access token from its refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenBaseURL+"/token?key="+url.QueryEscape(c.apiKey),
		strings.NewReader(form.Encode()))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := c.do(req, &resp); err != nil {
		return Credentials{}, err
	}
	return credentialsFrom(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// VerifyAccessToken resolves the subject behind an access token.
func (c *Client) VerifyAccessToken(ctx context.Context, token string) (TokenInfo, error) {
	var resp lookupResponse
	err := c.post(ctx, c.identityBaseURL+"/accounts:lookup", map[string]any{"idToken": token}, &resp)
	if err != nil {
		return TokenInfo{}, err
	}
	if len(resp.Users) == 0 {
		return TokenInfo{}, ErrInvalidToken
	}
	u := resp.Users[0]
	return TokenInfo{SubjectID: u.LocalID, Email: u.Email, EmailVerified: u.EmailVerified}, nil
}

// GetUserInfo is VerifyAccessToken under the profile-read name; the provider
// serves both from the same lookup endpoint.
func (c *Client) GetUserInfo(ctx context.Context, token string) (TokenInfo, error) {
	return c.VerifyAccessToken(ctx, token)
}

// SendEmailVerification asks the provider to mail a verification link to the
// token's subject.
func (c *Client) SendEmailVerification(ctx context.Context, token string) error {
	return c.post(ctx, c.identityBaseURL+"/accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     token,
	}, &struct{}{})
}

// SendPasswordReset asks the provider to mail a password reset link.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.post(ctx, c.identityBaseURL+"/accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, &struct{}{})
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint+"?key="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var perr providerError
		if err := json.NewDecoder(resp.Body).Decode(&perr); err != nil {
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return mapProviderError(perr.Error.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// mapProviderError translates the provider's coded messages into the adapter
// error taxonomy. Unknown codes fail closed as ErrAuthFailed.
func mapProviderError(message string) error {
	switch {
	case strings.Contains(message, "TOKEN_EXPIRED"):
		return ErrExpiredToken
	case strings.Contains(message, "INVALID_ID_TOKEN"),
		strings.Contains(message, "INVALID_REFRESH_TOKEN"),
		strings.Contains(message, "USER_NOT_FOUND"):
		return ErrInvalidToken
	case strings.Contains(message, "INVALID_LOGIN_CREDENTIALS"),
		strings.Contains(message, "EMAIL_NOT_FOUND"),
		strings.Contains(message, "INVALID_PASSWORD"):
		return fmt.Errorf("%w: invalid email or password", ErrAuthFailed)
	case strings.Contains(message, "USER_DISABLED"):
		return fmt.Errorf("%w: account has been disabled", ErrAuthFailed)
	case strings.Contains(message, "EMAIL_EXISTS"):
		return fmt.Errorf("%w: email already registered", ErrAuthFailed)
	case strings.Contains(message, "WEAK_PASSWORD"):
		return fmt.Errorf("%w: password is too weak", ErrAuthFailed)
	case strings.Contains(message, "TOO_MANY_ATTEMPTS_TRY_LATER"):
		return fmt.Errorf("%w: too many attempts, try again later", ErrAuthFailed)
	default:
		return fmt.Errorf("%w: %s", ErrAuthFailed, strings.ToLower(message))
	}
}

func credentialsFrom(access, refresh, expiresIn string) (Credentials, error) {
	if access == "" {
		return Credentials{}, ErrUnavailable
	}
	seconds, err := strconv.ParseInt(expiresIn, 10, 64)
	if err != nil {
		seconds = 3600
	}
	return Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    time.Duration(seconds) * time.Second,
	}, nil
}
