// Package cloudflare implements the provider management API client used to
// create, list, and delete tunnels and the DNS records pointing at them.
package cloudflare

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
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
	"github.com/nport/nport-edge/internal/metrics"
)

// DefaultBaseURL is the provider's v4 REST endpoint.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// tunnelDNSSuffix is the zone every tunnel is addressable under; a proxied
// CNAME per tunnel points the vanity hostname at it.
const tunnelDNSSuffix = ".cfargotunnel.com"

const userAgent = "nport-edge"
const listPageSize = 100
const maxResponseBytes = 4 << 20
const rollbackTimeout = 10 * time.Second
const defaultMaxTries = 4
const defaultRetryInterval = 500 * time.Millisecond

// Client talks to the provider management API. One Client is shared across
// requests; credentials arrive per call with the resolved [config.Config].
//
// Create is single-attempt (provisioning is not idempotent); list and
// delete retry transient failures with exponential backoff.
type Client struct {
	HTTPClient    *http.Client
	BaseURL       string
	Log           *slog.Logger
	MaxTries      uint
	RetryInterval time.Duration
}

// New returns a Client against baseURL, or [DefaultBaseURL] when blank.
func New(log *slog.Logger, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		Log:           log,
		MaxTries:      defaultMaxTries,
		RetryInterval: defaultRetryInterval,
	}
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Success    bool            `json:"success"`
	Errors     []apiMessage    `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info,omitempty"`
}

type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

type createTunnelBody struct {
	Name      string `json:"name"`
	ConfigSrc string `json:"config_src"`
}

type dnsRecordBody struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl"`
	Comment string `json:"comment,omitempty"`
}

type dnsRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateTunnel provisions a named tunnel and points {name}.{cfg.Domain} at
// it via a proxied CNAME record. Single-attempt; the caller's request
// context bounds the call. If the DNS step fails the freshly created tunnel
// is rolled back best-effort.
func (c *Client) CreateTunnel(ctx context.Context, cfg config.Config, name string) (domain.Tunnel, error) {
	env, err := c.do(ctx, cfg, http.MethodPost,
		"/accounts/"+url.PathEscape(cfg.AccountID)+"/cfd_tunnel",
		"create tunnel",
		createTunnelBody{Name: name, ConfigSrc: "cloudflare"})
	if err != nil {
		return domain.Tunnel{}, err
	}
	var tun domain.Tunnel
	if err := json.Unmarshal(env.Result, &tun); err != nil {
		return domain.Tunnel{}, &domain.ProviderError{Op: "create tunnel", Err: err}
	}
	if tun.Name == "" {
		tun.Name = name
	}

	record := dnsRecordBody{
		Type:    "CNAME",
		Name:    name + "." + cfg.Domain,
		Content: tun.ID + tunnelDNSSuffix,
		Proxied: true,
		TTL:     1,
		Comment: "managed by nport-edge",
	}
	if _, err := c.do(ctx, cfg, http.MethodPost,
		"/zones/"+url.PathEscape(cfg.ZoneID)+"/dns_records",
		"create dns record", record); err != nil {
		c.rollbackTunnel(cfg, tun)
		return domain.Tunnel{}, err
	}

	return tun, nil
}

// ListTunnels returns every live tunnel on the account, following
// pagination to the end.
func (c *Client) ListTunnels(ctx context.Context, cfg config.Config) ([]domain.Tunnel, error) {
	var all []domain.Tunnel
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("is_deleted", "false")
		q.Set("per_page", fmt.Sprintf("%d", listPageSize))
		q.Set("page", fmt.Sprintf("%d", page))
		path := "/accounts/" + url.PathEscape(cfg.AccountID) + "/cfd_tunnel?" + q.Encode()

		env, err := c.withRetry(ctx, func() (*apiEnvelope, error) {
			return c.do(ctx, cfg, http.MethodGet, path, "list tunnels", nil)
		})
		if err != nil {
			return nil, err
		}
		var batch []domain.Tunnel
		if err := json.Unmarshal(env.Result, &batch); err != nil {
			return nil, &domain.ProviderError{Op: "list tunnels", Err: err}
		}
		all = append(all, batch...)
		if env.ResultInfo == nil || env.ResultInfo.Page >= env.ResultInfo.TotalPages || len(batch) == 0 {
			break
		}
	}
	return all, nil
}

// DeleteTunnel removes a tunnel and the DNS record pointing at it. A
// missing DNS record is not an error; a failed DNS delete is logged and the
// tunnel delete still proceeds.
func (c *Client) DeleteTunnel(ctx context.Context, cfg config.Config, tun domain.Tunnel) error {
	if tun.Name != "" {
		if err := c.deleteDNSRecord(ctx, cfg, tun.Name); err != nil {
			c.logger().Warn("failed to delete dns record", "tunnel", tun.Name, "err", err)
		}
	}

	path := "/accounts/" + url.PathEscape(cfg.AccountID) + "/cfd_tunnel/" + url.PathEscape(tun.ID) + "?cascade=true"
	_, err := c.withRetry(ctx, func() (*apiEnvelope, error) {
		return c.do(ctx, cfg, http.MethodDelete, path, "delete tunnel", nil)
	})
	return err
}

func (c *Client) deleteDNSRecord(ctx context.Context, cfg config.Config, name string) error {
	q := url.Values{}
	q.Set("type", "CNAME")
	q.Set("name", name+"."+cfg.Domain)
	query := "/zones/" + url.PathEscape(cfg.ZoneID) + "/dns_records?" + q.Encode()

	env, err := c.withRetry(ctx, func() (*apiEnvelope, error) {
		return c.do(ctx, cfg, http.MethodGet, query, "find dns record", nil)
	})
	if err != nil {
		return err
	}
	var records []dnsRecord
	if err := json.Unmarshal(env.Result, &records); err != nil {
		return &domain.ProviderError{Op: "find dns record", Err: err}
	}

	for _, rec := range records {
		path := "/zones/" + url.PathEscape(cfg.ZoneID) + "/dns_records/" + url.PathEscape(rec.ID)
		if _, err := c.withRetry(ctx, func() (*apiEnvelope, error) {
			return c.do(ctx, cfg, http.MethodDelete, path, "delete dns record", nil)
		}); err != nil {
			return err
		}
	}
	return nil
}

// rollbackTunnel deletes a tunnel whose DNS record could not be created.
// It runs on a fresh context: the triggering request may already be gone.
func (c *Client) rollbackTunnel(cfg config.Config, tun domain.Tunnel) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	path := "/accounts/" + url.PathEscape(cfg.AccountID) + "/cfd_tunnel/" + url.PathEscape(tun.ID) + "?cascade=true"
	if _, err := c.do(ctx, cfg, http.MethodDelete, path, "rollback tunnel", nil); err != nil {
		c.logger().Warn("failed to roll back tunnel after dns failure", "tunnel_id", tun.ID, "err", err)
	}
}

func (c *Client) do(ctx context.Context, cfg config.Config, method, path, op string, body any) (*apiEnvelope, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &domain.ProviderError{Op: op, Err: err}
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base()+path, payload)
	if err != nil {
		return nil, &domain.ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		c.count(op, "error")
		return nil, &domain.ProviderError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	var env apiEnvelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env)
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 && decodeErr != nil {
		c.count(op, "error")
		return nil, &domain.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: decodeErr}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		c.count(op, "error")
		return nil, &domain.ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Detail:     joinMessages(env.Errors),
		}
	}

	c.count(op, "ok")
	return &env, nil
}

// withRetry retries transient failures (transport errors, 429, 5xx) with
// exponential backoff. Other provider responses are permanent.
func (c *Client) withRetry(ctx context.Context, op func() (*apiEnvelope, error)) (*apiEnvelope, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval()

	return backoff.Retry(ctx, func() (*apiEnvelope, error) {
		env, err := op()
		if err != nil {
			return nil, classifyRetry(err)
		}
		return env, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries()))
}

func classifyRetry(err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode == 0 || pe.StatusCode == http.StatusTooManyRequests || pe.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}
	return err
}

func joinMessages(msgs []apiMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Message == "" {
			continue
		}
		if m.Code != 0 {
			parts = append(parts, fmt.Sprintf("%s (code %d)", m.Message, m.Code))
			continue
		}
		parts = append(parts, m.Message)
	}
	return strings.Join(parts, "; ")
}

func (c *Client) count(op, outcome string) {
	metrics.ProviderRequests.WithLabelValues(strings.ReplaceAll(op, " ", "_"), outcome).Inc()
}

func (c *Client) base() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

func (c *Client) client() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

func (c *Client) maxTries() uint {
	if c.MaxTries == 0 {
		return defaultMaxTries
	}
	return c.MaxTries
}

func (c *Client) retryInterval() time.Duration {
	if c.RetryInterval <= 0 {
		return defaultRetryInterval
	}
	return c.RetryInterval
}
