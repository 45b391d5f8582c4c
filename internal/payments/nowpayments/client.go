// Package nowpayments — тонкий клиент REST API NOWPayments.
// Только два вызова, которые нужны магазину: создать платёж
// и узнать его статус.
package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/shop-bot/internal/common"
)

// Client ходит в API NOWPayments.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// CreatePaymentRequest — параметры создания платежа.
type CreatePaymentRequest struct {
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	PayCurrency   string          `json:"pay_currency"`
	OrderID       string          `json:"order_id,omitempty"`
	Description   string          `json:"order_description,omitempty"`
}

// Payment — созданный платёж: адрес и сумма для перевода.
type Payment struct {
	PaymentID     json.Number     `json:"payment_id"`
	Status        string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	PayCurrency   string          `json:"pay_currency"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
}

// CreatePayment создаёт платёж и возвращает реквизиты для оплаты.
func (c *Client) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	var payment Payment
	if err := c.do(ctx, http.MethodPost, "/v1/payment", bytes.NewReader(body), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Status возвращает текущий статус платежа.
func (c *Client) Status(ctx context.Context, paymentID string) (string, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payment/"+paymentID, nil, &payment); err != nil {
		return "", err
	}
	return payment.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: NOWPayments вернул %d: %s", common.ErrExternal, resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: ошибка разбора ответа: %v", common.ErrExternal, err)
	}
	return nil
}
