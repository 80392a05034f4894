// Package keycloak manages user accounts through the Keycloak Admin REST API.
//
// The client authenticates against the admin realm with the client credentials
// flow and caches the token until 30 seconds before it expires. Account
// operations address the institution's own realm.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/institution-management/internal/identity"
	"github.com/frahmantamala/institution-management/internal/metrics"
)

type Client struct {
	baseURL      string
	adminRealm   string
	clientID     string
	clientSecret string
	timeout      time.Duration

	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Config struct {
	BaseURL      string
	AdminRealm   string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func New(cfg Config, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.AdminRealm == "" {
		cfg.AdminRealm = "master"
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		adminRealm:   cfg.AdminRealm,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		timeout:      cfg.Timeout,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
		metrics:      m,
	}
}

func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, url.PathEscape(c.adminRealm))
}

func (c *Client) realmURL(realm string) string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, url.PathEscape(realm))
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("keycloak token refreshed", slog.Time("expires_at", c.tokenExpiry))
	return c.accessToken, nil
}

func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request keycloak token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("keycloak token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode keycloak token: %w", err)
	}
	return &token, nil
}

func (c *Client) doAuthorized(ctx context.Context, method, reqURL string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode keycloak response: %w", err)
		}
	}
	return nil
}

func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// StatusError is an unexpected admin API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keycloak admin api returned %d: %s", e.StatusCode, e.Body)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func (c *Client) observe(op string, start time.Time, err *error) {
	c.metrics.ObserveIdentityProvider(op, *err, time.Since(start))
}

// CreateAccount creates an enabled account with a temporary password and maps the given
// realm roles. If role mapping fails the account is removed again before returning.
func (c *Client) CreateAccount(ctx context.Context, realm string, acct identity.Account, tempCredential string, roles []string) (id string, err error) {
	defer c.observe("create_account", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	createReq := userCreateRequest{
		Username:      strings.ToLower(acct.Email),
		Email:         acct.Email,
		FirstName:     acct.FirstName,
		LastName:      acct.LastName,
		Enabled:       true,
		EmailVerified: false,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: tempCredential, Temporary: true},
		},
		RequiredActions: []string{"UPDATE_PASSWORD"},
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, c.realmURL(realm)+"/users", createReq)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	if err := checkResponse(resp, http.StatusCreated); err != nil {
		if isStatus(err, http.StatusConflict) {
			return "", fmt.Errorf("create account: %w", identity.ErrAccountExists)
		}
		return "", fmt.Errorf("create account: %w", err)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("create account: missing Location header in response")
	}
	parts := strings.Split(strings.TrimRight(location, "/"), "/")
	id = parts[len(parts)-1]
	if id == "" {
		return "", fmt.Errorf("create account: cannot extract id from Location %s", location)
	}

	if err := c.assignRealmRoles(ctx, realm, id, roles); err != nil {
		if delErr := c.deleteAccount(context.WithoutCancel(ctx), realm, id); delErr != nil {
			c.logger.Error("failed to remove account after role mapping failure",
				"realm", realm, "external_id", id, "error", delErr)
		}
		return "", fmt.Errorf("assign realm roles: %w", err)
	}

	return id, nil
}

func (c *Client) assignRealmRoles(ctx context.Context, realm, userID string, roles []string) error {
	if len(roles) == 0 {
		return nil
	}

	reps := make([]RoleRepresentation, 0, len(roles))
	for _, name := range roles {
		resp, err := c.doAuthorized(ctx, http.MethodGet, c.realmURL(realm)+"/roles/"+url.PathEscape(name), nil)
		if err != nil {
			return err
		}
		var rep RoleRepresentation
		if err := decodeResponse(resp, &rep); err != nil {
			if isStatus(err, http.StatusNotFound) {
				c.logger.Warn("realm role not defined, skipping mapping", "realm", realm, "role", name)
				continue
			}
			return err
		}
		reps = append(reps, rep)
	}
	if len(reps) == 0 {
		return nil
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, c.realmURL(realm)+"/users/"+url.PathEscape(userID)+"/role-mappings/realm", reps)
	if err != nil {
		return err
	}
	return checkResponse(resp, http.StatusNoContent)
}

// DisableAccount blocks further logins without deleting the account.
func (c *Client) DisableAccount(ctx context.Context, realm, externalID string) (err error) {
	defer c.observe("disable_account", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.doAuthorized(ctx, http.MethodPut, c.realmURL(realm)+"/users/"+url.PathEscape(externalID), userUpdateRequest{Enabled: false})
	if err != nil {
		return fmt.Errorf("disable account: %w", err)
	}
	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("disable account: %w", err)
	}
	return nil
}

// DeleteAccount removes the account. An account that is already gone counts as deleted.
func (c *Client) DeleteAccount(ctx context.Context, realm, externalID string) (err error) {
	defer c.observe("delete_account", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.deleteAccount(ctx, realm, externalID)
}

func (c *Client) deleteAccount(ctx context.Context, realm, externalID string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, c.realmURL(realm)+"/users/"+url.PathEscape(externalID), nil)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}
