package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
)

const (
	transactionStartedPath = "/api/charge/webhook/transaction-started"
	transactionStoppedPath = "/api/charge/webhook/transaction-stopped"
)

// TransactionStartedEvent is the webhook body for an opened transaction.
type TransactionStartedEvent struct {
	ChargePointID string               `json:"chargePointId"`
	TransactionID models.TransactionID `json:"transactionId"`
	ConnectorID   int                  `json:"connectorId"`
	IdTag         string               `json:"idTag"`
	MeterStart    *float64             `json:"meterStart,omitempty"`
	StartTime     *time.Time           `json:"startTime,omitempty"`
}

// TransactionStoppedEvent is the webhook body for a closed transaction.
type TransactionStoppedEvent struct {
	ChargePointID string               `json:"chargePointId"`
	TransactionID models.TransactionID `json:"transactionId"`
	MeterStop     *float64             `json:"meterStop,omitempty"`
	EndTime       *time.Time           `json:"endTime,omitempty"`
}

// BillingClient notifies the billing backend about transaction boundaries.
// Every notification runs in the background and is delivered at most once.
type BillingClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewBillingClient returns HTTP client wrapper. An empty baseURL disables delivery.
func NewBillingClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BillingClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BillingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// NotifyTransactionStarted posts the transaction-started webhook without blocking.
func (c *BillingClient) NotifyTransactionStarted(tx models.Transaction) {
	event := TransactionStartedEvent{
		ChargePointID: tx.StationIdentity,
		TransactionID: tx.ID,
		ConnectorID:   tx.ConnectorID,
		IdTag:         tx.IdTag,
		MeterStart:    tx.MeterStart,
	}
	if !tx.StartTime.IsZero() {
		start := tx.StartTime
		event.StartTime = &start
	}
	c.dispatch(transactionStartedPath, tx, event)
}

// NotifyTransactionStopped posts the transaction-stopped webhook without blocking.
func (c *BillingClient) NotifyTransactionStopped(tx models.Transaction) {
	c.dispatch(transactionStoppedPath, tx, TransactionStoppedEvent{
		ChargePointID: tx.StationIdentity,
		TransactionID: tx.ID,
		MeterStop:     tx.MeterStop,
		EndTime:       tx.EndTime,
	})
}

// Close stops accepting notifications and waits for in-flight ones or until ctx is done.
func (c *BillingClient) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *BillingClient) dispatch(path string, tx models.Transaction, body interface{}) {
	if c.baseURL == "" {
		c.logger.Debug("billing client disabled, skip notification", zap.String("path", path))
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("billing client closed, dropping notification",
			zap.String("path", path),
			zap.String("transaction_id", tx.ID.String()),
		)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := c.post(context.Background(), path, body); err != nil {
			c.logger.Warn("billing notification failed",
				zap.String("path", path),
				zap.String("station_id", tx.StationIdentity),
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

func (c *BillingClient) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("billing backend returned status %d", resp.StatusCode)
	}
	return nil
}
