// Package lnbits is a thin client for the LNbits payment collaborator. The
// engine only needs payment issuance and a spot rate; invoice and LNURL
// primitives are out of scope.
package lnbits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type paymentRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
	Wallet string `json:"wallet_id"`
}

type paymentResponse struct {
	PaymentHash string `json:"payment_hash"`
	Fee         int64  `json:"fee"`
	Detail      string `json:"detail"`
}

// IssuePayment asks LNbits to pay amountSats to the destination wallet and
// returns the payment reference.
func (c *Client) IssuePayment(ctx context.Context, walletID string, amountSats int64, memo string) (string, int64, error) {
	body, err := json.Marshal(paymentRequest{
		Out:    true,
		Amount: amountSats,
		Memo:   memo,
		Wallet: walletID,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal payment request: %w", err)
	}

	var resp paymentResponse
	if err := c.post(ctx, "/api/v1/payments", body, &resp); err != nil {
		return "", 0, err
	}
	if resp.PaymentHash == "" {
		return "", 0, fmt.Errorf("payment rejected: %s", resp.Detail)
	}

	return resp.PaymentHash, resp.Fee, nil
}

// CurrentRate returns the spot price of one whole coin in the given fiat
// currency.
func (c *Client) CurrentRate(ctx context.Context, fiatCode string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/rate/"+fiatCode, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch rate: unexpected status %d", res.StatusCode)
	}

	var payload struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate: %w", err)
	}
	if !payload.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate for %s", fiatCode)
	}

	return payload.Rate, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call lnbits: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(res.Body).Decode(&detail)
		return fmt.Errorf("lnbits returned %d: %s", res.StatusCode, detail.Detail)
	}

	return json.NewDecoder(res.Body).Decode(out)
}
