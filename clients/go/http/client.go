// Package http provides an HTTP client for the configurator service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	configurator "github.com/glassline/configurator/clients/go"
)

// Config holds configuration for the HTTP client.
type Config struct {
	// BaseURL is the base URL of the configurator server, e.g.
	// "http://localhost:8080".
	BaseURL string
	// APIKey is the bearer token in "id.secret" format.
	APIKey string
	// HTTPClient is optional; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements configurator.Resolver, configurator.SKUParser, and
// configurator.CandidateLister over HTTP.
//
// The client remembers the highest resolution sequence number it has seen
// and rejects responses that arrive out of order, so a slow request issued
// before a catalog change cannot clobber the state a later response already
// delivered. A Client is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	seq        sequenceTracker
}

// NewHTTPClient returns a new HTTP client for the configurator service.
func NewHTTPClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// APIError is returned when the server responds with an HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("configurator: HTTP %d: %s", e.StatusCode, e.Message)
}

// -- wire types --------------------------------------------------------------

type wireResolveReq struct {
	ProductID  int64                  `json:"product_id"`
	Selections configurator.Selection `json:"selections,omitempty"`
}

type wireParseSKUReq struct {
	SKU string `json:"sku"`
}

type wireListResp struct {
	Products []configurator.Product `json:"products"`
}

// -- helpers -----------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("configurator: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("configurator: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("configurator: http: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// -- Resolver ----------------------------------------------------------------

// Resolve resolves a partial selection against one product. Responses whose
// sequence number is older than the highest one this client has observed are
// dropped with [configurator.ErrStaleResolution].
func (c *Client) Resolve(ctx context.Context, productID int64, selections configurator.Selection) (configurator.Resolution, error) {
	body := wireResolveReq{ProductID: productID, Selections: selections}
	resp, err := c.do(ctx, http.MethodPost, "/v1/configurations/resolve", body)
	if err != nil {
		return configurator.Resolution{}, err
	}
	defer resp.Body.Close()
	var out configurator.Resolution
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return configurator.Resolution{}, fmt.Errorf("configurator: decode response: %w", err)
	}
	if !c.seq.observe(out.Sequence) {
		return configurator.Resolution{}, configurator.ErrStaleResolution
	}
	return out, nil
}

// -- SKUParser ---------------------------------------------------------------

// ParseSKU recovers the product and selection encoded in a SKU string.
func (c *Client) ParseSKU(ctx context.Context, sku string) (configurator.ParsedSKU, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/sku/parse", wireParseSKUReq{SKU: sku})
	if err != nil {
		return configurator.ParsedSKU{}, err
	}
	defer resp.Body.Close()
	var out configurator.ParsedSKU
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return configurator.ParsedSKU{}, fmt.Errorf("configurator: decode response: %w", err)
	}
	return out, nil
}

// -- CandidateLister ---------------------------------------------------------

// ListProducts lists the products of a line. A non-empty filter narrows the
// result to products whose stored attributes match every entry.
func (c *Client) ListProducts(ctx context.Context, lineID int64, filter map[string]int64) ([]configurator.Product, error) {
	path := "/v1/product-lines/" + strconv.FormatInt(lineID, 10) + "/products"
	if len(filter) > 0 {
		q := make(url.Values, len(filter))
		for field, id := range filter {
			q.Set(field, strconv.FormatInt(id, 10))
		}
		path += "?" + q.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out wireListResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("configurator: decode response: %w", err)
	}
	return out.Products, nil
}
