// Package whoicd is a client for the WHO ICD-11 API (https://icd.who.int/icdapi).
package whoicd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound is returned when the API has no entity for a code.
var ErrNotFound = errors.New("icd entity not found")

const canonicalHost = "http://id.who.int"

// Config holds API credentials and endpoints. An empty ClientID sends
// unauthenticated requests, which suits self-hosted ICD API containers.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
	Release      string
	Language     string
	Timeout      time.Duration
	RetryMax     int
}

// Entity is an ICD-11 MMS linearization entity.
type Entity struct {
	URI        string   `json:"uri"`
	Code       string   `json:"code"`
	Title      string   `json:"title"`
	Definition string   `json:"definition,omitempty"`
	ClassKind  string   `json:"classKind,omitempty"`
	BrowserURL string   `json:"browserUrl,omitempty"`
	ParentURIs []string `json:"parents,omitempty"`
	ChildURIs  []string `json:"children,omitempty"`
}

type languageValue struct {
	Value string `json:"@value"`
}

type entityDoc struct {
	ID         string        `json:"@id"`
	Code       string        `json:"code"`
	Title      languageValue `json:"title"`
	Definition languageValue `json:"definition"`
	ClassKind  string        `json:"classKind"`
	BrowserURL string        `json:"browserUrl"`
	Parent     []string      `json:"parent"`
	Child      []string      `json:"child"`
}

type codeInfo struct {
	Code   string `json:"code"`
	StemID string `json:"stemId"`
}

// Client talks to the ICD-11 API with retries and OAuth2 client credentials.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client. The retrying transport also carries token requests.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://id.who.int"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Release == "" {
		cfg.Release = "2024-01"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	base := retryClient.StandardClient()

	httpClient := base
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{"icdapi_access"},
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
	}

	return &Client{cfg: cfg, http: httpClient}
}

// Release returns the configured MMS release id.
func (c *Client) Release() string { return c.cfg.Release }

// LookupCode resolves an MMS code to its entity.
func (c *Client) LookupCode(ctx context.Context, code string) (*Entity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	endpoint := fmt.Sprintf("%s/icd/release/11/%s/mms/codeinfo/%s?flexiblemode=false",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Release), url.PathEscape(code))

	var info codeInfo
	if err := c.get(ctx, endpoint, &info); err != nil {
		return nil, fmt.Errorf("codeinfo %s: %w", code, err)
	}
	if info.StemID == "" {
		return nil, fmt.Errorf("codeinfo %s: %w", code, ErrNotFound)
	}

	e, err := c.Entity(ctx, info.StemID)
	if err != nil {
		return nil, err
	}
	if e.Code == "" {
		e.Code = info.Code
	}
	return e, nil
}

// Entity fetches an entity by its canonical URI.
func (c *Client) Entity(ctx context.Context, uri string) (*Entity, error) {
	var doc entityDoc
	if err := c.get(ctx, c.resolve(uri), &doc); err != nil {
		return nil, fmt.Errorf("entity %s: %w", uri, err)
	}
	id := doc.ID
	if id == "" {
		id = uri
	}
	return &Entity{
		URI:        id,
		Code:       doc.Code,
		Title:      doc.Title.Value,
		Definition: doc.Definition.Value,
		ClassKind:  doc.ClassKind,
		BrowserURL: doc.BrowserURL,
		ParentURIs: doc.Parent,
		ChildURIs:  doc.Child,
	}, nil
}

// resolve rewrites canonical http://id.who.int URIs onto the configured base.
func (c *Client) resolve(uri string) string {
	if strings.HasPrefix(uri, canonicalHost) {
		return c.cfg.BaseURL + strings.TrimPrefix(uri, canonicalHost)
	}
	if strings.HasPrefix(uri, "https://id.who.int") {
		return c.cfg.BaseURL + strings.TrimPrefix(uri, "https://id.who.int")
	}
	return uri
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.cfg.Language)
	req.Header.Set("API-Version", "v2")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
