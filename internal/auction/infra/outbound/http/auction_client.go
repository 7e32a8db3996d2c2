package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

// StatusError es una respuesta no 2xx del servicio de subastas.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("auction service responded %d: %s", e.StatusCode, e.Body)
}

// AuctionClient consulta el servicio de subastas para el seed inicial.
type AuctionClient struct {
	baseURL string
	client  *http.Client
}

func NewAuctionClient(baseURL string, client *http.Client) *AuctionClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuctionClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// ListAuctions hace GET /api/auctions?date=... y clasifica el fallo para el reintento:
// 404, 408, 429 y 5xx son pasajeros (el servicio aún arranca), el resto no.
func (c *AuctionClient) ListAuctions(ctx context.Context, since time.Time) ([]auctionDomain.AuctionSnapshot, error) {
	u, err := url.Parse(c.baseURL + "/api/auctions")
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid auction service url: %w", err))
	}
	if !since.IsZero() {
		q := u.Query()
		q.Set("date", since.UTC().Format(time.RFC3339))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("get auctions: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if isTransientStatus(resp.StatusCode) {
			return nil, retry.Transient(statusErr)
		}
		return nil, retry.Permanent(statusErr)
	}

	var auctions []auctionDomain.AuctionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&auctions); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode auctions: %w", err))
	}
	return auctions, nil
}

func isTransientStatus(code int) bool {
	switch {
	case code == http.StatusNotFound,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= 500:
		return true
	}
	return false
}

var _ auctionDomain.AuctionSource = (*AuctionClient)(nil)
