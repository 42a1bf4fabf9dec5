// Package push sends device push notifications through FCM's legacy HTTP
// API. It is the delivery channel of last resort: the dispatcher only
// reaches for it when the receiver holds no open socket at all.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// fcmRequest is the legacy HTTP send payload.
type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Client sends notifications to device tokens via FCM.
type Client struct {
	endpoint  string
	serverKey string
	http      *http.Client
	log       *logrus.Entry
}

// NewClient builds an FCM client for the given endpoint and server key.
func NewClient(endpoint, serverKey string, log *logrus.Entry) *Client {
	return &Client{
		endpoint:  endpoint,
		serverKey: serverKey,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// SendToToken pushes one notification with an optional data payload to a
// device token.
func (c *Client) SendToToken(ctx context.Context, token, title, body string, payload map[string]string) error {
	reqBody, err := json.Marshal(fcmRequest{
		To:           token,
		Notification: fcmNotification{Title: title, Body: body},
		Data:         payload,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push request: fcm returned %d", resp.StatusCode)
	}

	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// 200 with an unreadable body still means FCM accepted the send.
		c.log.WithError(err).Debug("unreadable fcm response body")
		return nil
	}
	if out.Failure > 0 && out.Success == 0 {
		return fmt.Errorf("push request: fcm rejected token")
	}
	return nil
}
