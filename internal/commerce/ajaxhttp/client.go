// Package ajaxhttp talks to a storefront cart backend over the AJAX cart
// endpoints (cart.js, cart/add.js, cart/change.js, cart/clear.js).
package ajaxhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/config"
)

const maxBodyBytes = 4 << 20

type Client struct {
	baseURL    string
	routes     config.RoutesConfig
	cookieName string
	currency   string
	timeout    time.Duration

	httpClient *http.Client
	tracer     trace.Tracer
}

var _ commerce.Client = (*Client)(nil)

func New(cfg config.CommerceConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ajax_http: base_url required")
	}

	routes := cfg.Routes
	def := config.DefaultRoutes()
	if strings.TrimSpace(routes.Cart) == "" {
		routes.Cart = def.Cart
	}
	if strings.TrimSpace(routes.Add) == "" {
		routes.Add = def.Add
	}
	if strings.TrimSpace(routes.Change) == "" {
		routes.Change = def.Change
	}
	if strings.TrimSpace(routes.Clear) == "" {
		routes.Clear = def.Clear
	}

	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "cart"
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:    baseURL,
		routes:     routes,
		cookieName: cookieName,
		currency:   strings.TrimSpace(cfg.Currency),
		timeout:    timeout,
		httpClient: &http.Client{Transport: tr},
		tracer:     otel.Tracer("storefront/commerce/ajaxhttp"),
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.CommerceConfig, httpClient *http.Client) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

func (c *Client) FetchSnapshot(ctx context.Context, token string) (commerce.Result, error) {
	var wc wireCart
	rotated, err := c.doJSON(ctx, commerce.OpFetch, http.MethodGet, c.routes.Cart, token, nil, &wc)
	if err != nil {
		return commerce.Result{}, err
	}
	return c.result(wc, token, rotated), nil
}

// AddLine posts the line. The add endpoint answers with the added items, not
// the cart, so the result is Partial and carries only the cart token.
func (c *Client) AddLine(ctx context.Context, token string, line commerce.AddLine) (commerce.Result, error) {
	if strings.TrimSpace(line.VariantID) == "" {
		return commerce.Result{}, &commerce.ProtocolError{Op: commerce.OpAdd, Err: errors.New("variant id required")}
	}
	body := addRequest{Items: []addItem{{
		ID:         wireVariantID(line.VariantID),
		Quantity:   line.Quantity,
		Properties: line.Attributes,
	}}}
	var raw json.RawMessage
	rotated, err := c.doJSON(ctx, commerce.OpAdd, http.MethodPost, c.routes.Add, token, body, &raw)
	if err != nil {
		return commerce.Result{}, err
	}
	if rotated != "" {
		token = rotated
	}
	return commerce.Result{Token: token, Partial: true}, nil
}

func (c *Client) SetLineQuantity(ctx context.Context, token, key string, qty int) (commerce.Result, error) {
	if qty < 0 {
		qty = 0
	}
	var wc wireCart
	rotated, err := c.doJSON(ctx, commerce.OpChange, http.MethodPost, c.routes.Change, token, changeRequest{ID: key, Quantity: qty}, &wc)
	if err != nil {
		return commerce.Result{}, err
	}
	return c.result(wc, token, rotated), nil
}

func (c *Client) Clear(ctx context.Context, token string) (commerce.Result, error) {
	var wc wireCart
	rotated, err := c.doJSON(ctx, commerce.OpClear, http.MethodPost, c.routes.Clear, token, struct{}{}, &wc)
	if err != nil {
		return commerce.Result{}, err
	}
	return c.result(wc, token, rotated), nil
}

// result picks the cart token: a rotated cookie wins over the body token,
// which wins over the one sent.
func (c *Client) result(wc wireCart, sent, rotated string) commerce.Result {
	s := wc.snapshot(c.currency)
	tok := sent
	switch {
	case rotated != "":
		tok = rotated
	case wc.Token != "":
		tok = wc.Token
	}
	s.Token = tok
	return commerce.Result{Cart: s, Token: tok}
}

func (c *Client) doJSON(ctx context.Context, op, method, path, token string, body any, out any) (string, error) {
	ctx, span := c.tracer.Start(ctx, "commerce."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	rotated, status, err := c.roundTrip(ctx, op, method, path, token, body, out)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rotated, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, token string, body any, out any) (string, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return "", 0, &commerce.ProtocolError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, &buf)
	if err != nil {
		return "", 0, &commerce.ProtocolError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: token})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &commerce.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, &commerce.NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, &commerce.ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	rotated := ""
	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			rotated = ck.Value
		}
	}

	if out != nil {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return "", resp.StatusCode, &commerce.ProtocolError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return rotated, resp.StatusCode, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
