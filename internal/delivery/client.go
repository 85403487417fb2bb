// Package delivery performs the single best-effort delivery attempt for each
// relayed message.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/zap"
)

// MessagesPath is the well-known path every peer serves for inbound messages.
const MessagesPath = "/api/v1/messages"

// Client posts messages to a recipient's registered endpoint. Failures are
// absorbed here: Send always returns a value, never an error, so peer trouble
// cannot cross back into caller logic as an exceptional path.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a delivery client. Each attempt is bounded by timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts the message to the recipient endpoint's messages path and
// reports whether the peer accepted it. There is no retry; any transport
// failure, non-2xx status or malformed response counts as not delivered.
func (c *Client) Send(ctx context.Context, msg registry.Message, endpoint string) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("error when sending message", zap.Int("message_id", msg.ID), zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+MessagesPath, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("error when sending message", zap.Int("message_id", msg.ID), zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("error when sending message", zap.Int("message_id", msg.ID), zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("error when sending message",
			zap.Int("message_id", msg.ID),
			zap.Error(fmt.Errorf("peer returned status %d", resp.StatusCode)))
		return false
	}

	var ack struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		c.logger.Error("error when sending message", zap.Int("message_id", msg.ID), zap.Error(err))
		return false
	}
	return ack.Delivered
}
