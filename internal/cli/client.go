package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/OrderFlow/internal/ops"
)

// Client — HTTP-клиент служебного сервера order-ingestor.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для служебного сервера.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ready возвращает состояние зависимостей сервиса.
//
// 503 не считается ошибкой: ответ содержит статус каждой проверки.
func (c *Client) Ready() (*ops.ReadyResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/readyz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.checkError(resp)
	}

	var ready ops.ReadyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &ready, nil
}

func (c *Client) checkError(resp *http.Response) error {
	var er ops.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
