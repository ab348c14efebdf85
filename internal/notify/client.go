// Package notify предоставляет клиент внешнего сервиса уведомлений.
//
// Все отправки односторонние: результат доставки движком не используется,
// ошибка отправки логируется вызывающей стороной и не откатывает породившее её изменение.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом уведомлений.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент сервиса уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

type message struct {
	FarmerID      int64  `json:"farmer_id"`
	ApplicationID int64  `json:"application_id,omitempty"`
	Text          string `json:"text"`
}

// SendApprovalNotification уведомляет фермера о результате рассмотрения заявки.
func (c *Client) SendApprovalNotification(ctx context.Context, farmerID, applicationID int64, approved bool, comment string) error {
	text := "financing application approved"
	if !approved {
		text = "financing application rejected"
	}
	if comment != "" {
		text += ": " + comment
	}

	return c.post(ctx, "/api/notifications/approval", message{
		FarmerID:      farmerID,
		ApplicationID: applicationID,
		Text:          text,
	})
}

// SendContractSignReminder напоминает фермеру о необходимости подписать договор.
func (c *Client) SendContractSignReminder(ctx context.Context, farmerID, applicationID int64, contractNumber string) error {
	return c.post(ctx, "/api/notifications/contract-sign", message{
		FarmerID:      farmerID,
		ApplicationID: applicationID,
		Text:          fmt.Sprintf("contract %s is waiting for your signature", contractNumber),
	})
}

// SendRepaymentReminder напоминает фермеру о приближающемся сроке платежа.
func (c *Client) SendRepaymentReminder(ctx context.Context, farmerID, applicationID int64, installmentNo int, dueDate time.Time, amount float64) error {
	return c.post(ctx, "/api/notifications/repayment", message{
		FarmerID:      farmerID,
		ApplicationID: applicationID,
		Text:          fmt.Sprintf("installment %d of %.2f is due on %s", installmentNo, amount, dueDate.Format("2006-01-02")),
	})
}

// SendOverdueAlert уведомляет фермера о просроченной задолженности.
func (c *Client) SendOverdueAlert(ctx context.Context, farmerID int64, earliestDue time.Time, totalAmount float64) error {
	return c.post(ctx, "/api/notifications/overdue", message{
		FarmerID: farmerID,
		Text:     fmt.Sprintf("overdue debt of %.2f, earliest due date %s", totalAmount, earliestDue.Format("2006-01-02")),
	})
}

func (c *Client) post(ctx context.Context, path string, msg message) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
