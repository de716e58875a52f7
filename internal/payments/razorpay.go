// Package payments owns payment capture for cases: order creation against
// the Razorpay gateway, signature verification, webhook intake, and the
// reconciliation that flips a case from PENDING to PAID exactly once.
package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caplatform/backend/pkg/config"
)

const razorpayBaseURL = "https://api.razorpay.com"

// Gateway wraps the minimal Razorpay REST surface we use. In test mode with
// no credentials configured it fabricates order ids and skips signature
// checks so the flow can be exercised end to end without the gateway.
type Gateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	testMode      bool
	baseURL       string
	client        *http.Client
}

func NewGateway(cfg config.Razorpay) *Gateway {
	return &Gateway{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		testMode:      cfg.TestMode && !cfg.Configured(),
		baseURL:       razorpayBaseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Order is the subset of the gateway order we care about.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrder registers an order with the gateway: POST /v1/orders.
// Amount is in paise, receipt ties the order back to our case.
func (g *Gateway) CreateOrder(amountPaise int64, receipt string) (*Order, error) {
	if g.testMode {
		return &Order{
			ID:       fmt.Sprintf("order_TEST_%d", time.Now().UnixNano()),
			Amount:   amountPaise,
			Currency: "INR",
		}, nil
	}

	body, _ := json.Marshal(map[string]any{
		"amount":   amountPaise,
		"currency": "INR",
		"receipt":  receipt,
	})

	req, err := http.NewRequest(http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	res, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("razorpay order error: %s | %s", res.Status, string(b))
	}

	var out Order
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPaymentSignature checks the checkout callback signature:
// HMAC-SHA256 over "<order_id>|<payment_id>" with the key secret, hex
// encoded. Comparison is constant-time.
func (g *Gateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if g.testMode {
		return true
	}
	return verifyHMAC(g.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the X-Signature header against the raw
// request body using the dedicated webhook secret.
func (g *Gateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if g.testMode {
		return true
	}
	return verifyHMAC(g.webhookSecret, body, signature)
}

func verifyHMAC(secret string, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
