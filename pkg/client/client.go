package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to the JSON API of `railspreview serve`.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string        // e.g. http://127.0.0.1:8501/api
	Timeout  time.Duration // zero means no timeout; a launch can poll for minutes
	Logger   *slog.Logger  // Optional logger for client operations
	Username string        // UI basic auth
	Password string
	TLS      *TLSClientConfig
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path, e.g. the generated tls_ca.crt
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: "http://127.0.0.1:8501/api"}
}

// New creates a new API client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil {
		tlsConfig, err := setupClientTLS(*config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		username: config.Username,
		password: config.Password,
		logger:   config.Logger,
		client:   &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// IsReachable checks if the UI server is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	var raw json.RawMessage
	code, err := c.do(ctx, http.MethodGet, "/status", nil, &raw)
	if err != nil {
		c.logger.Debug("server unreachable", "error", err)
		return false
	}
	return code == http.StatusOK
}

func (c *Client) Repos(ctx context.Context) ([]string, error) {
	var out reposResponse
	if err := c.expect(ctx, http.MethodGet, "/repos", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Repos, nil
}

// Clone returns the clone result; a failed clone is reported in its Error field.
func (c *Client) Clone(ctx context.Context, repoURL string) (CloneResult, error) {
	var out CloneResult
	err := c.expect(ctx, http.MethodPost, "/clone", CloneRequest{RepoURL: repoURL}, &out, http.StatusOK, http.StatusBadGateway)
	return out, err
}

// Start launches repo. Launch failures come back as a LaunchResult with Kind
// set; the error is reserved for transport and request problems.
func (c *Client) Start(ctx context.Context, repo string) (LaunchResult, error) {
	var out LaunchResult
	err := c.expect(ctx, http.MethodPost, "/start", StartRequest{Repo: repo}, &out,
		http.StatusOK, http.StatusConflict, http.StatusNotFound, http.StatusGatewayTimeout,
		http.StatusServiceUnavailable, http.StatusBadGateway)
	return out, err
}

func (c *Client) Stop(ctx context.Context) (StopResult, error) {
	var out StopResult
	err := c.expect(ctx, http.MethodPost, "/stop", nil, &out, http.StatusOK, http.StatusInternalServerError)
	return out, err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.expect(ctx, http.MethodGet, "/status", nil, &out, http.StatusOK)
	return out, err
}

func (c *Client) History(ctx context.Context, limit int) ([]Event, error) {
	var out []Event
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.expect(ctx, http.MethodGet, path, nil, &out, http.StatusOK)
	return out, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config TLSClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         config.ServerName,
		InsecureSkipVerify: config.SkipVerify, // #nosec G402 opt-in for self-signed dev certificates
	}
	if config.CACert != "" {
		if err := loadCACert(tlsConfig, config.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// expect performs the request and decodes the body into out when the status
// is one of ok; any other status becomes an error.
func (c *Client) expect(ctx context.Context, method, path string, body, out any, ok ...int) error {
	var raw json.RawMessage
	code, err := c.do(ctx, method, path, body, &raw)
	if err != nil {
		return err
	}
	for _, s := range ok {
		if code == s {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decode %s response: %w", path, err)
			}
			return nil
		}
	}
	var er ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		c.logger.Error("API request failed", "error", er.Error, "status", code)
		return fmt.Errorf("API error: %s", er.Error)
	}
	return fmt.Errorf("HTTP %d", code)
}

func (c *Client) do(ctx context.Context, method, path string, body any, raw *json.RawMessage) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", req.URL.String())
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	*raw = b
	return resp.StatusCode, nil
}
