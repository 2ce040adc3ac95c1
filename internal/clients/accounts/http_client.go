// Package accounts содержит клиентов внешнего справочника аккаунтов.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	defaultTimeout  = 5 * time.Second
	accountsPath    = "/v1/accounts"
	maxErrorBodyLen = 512
)

// Config задаёт адрес и таймаут справочника.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient запрашивает аккаунты вызывающего у account-service, пробрасывая его токен.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// NewHTTPClient создаёт клиента справочника.
func NewHTTPClient(cfg Config, logger *log.Entry) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("account directory base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "account-directory")
	}

	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// ListAccounts выполняет GET /v1/accounts. Любая ошибка транспорта или не-2xx ответ
// оборачивает domain.ErrDirectoryUnavailable; повторов нет.
func (c *HTTPClient) ListAccounts(ctx context.Context, caller domain.Caller) ([]domain.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+accountsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrDirectoryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if caller.Token != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("account directory request failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		c.logger.WithFields(log.Fields{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(body)),
		}).Warn("account directory returned non-success status")
		return nil, fmt.Errorf("%w: status %d", domain.ErrDirectoryUnavailable, resp.StatusCode)
	}

	var accounts []domain.Account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("%w: decode accounts: %w", domain.ErrDirectoryUnavailable, err)
	}
	return accounts, nil
}

// Ping проверяет, что справочник отвечает по HTTP (статус ответа не важен).
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+accountsPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, err)
	}
	_ = resp.Body.Close()
	return nil
}

var _ domain.AccountDirectory = (*HTTPClient)(nil)
