package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushSender posts device notifications to the push provider's HTTP API.
type PushSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPushSender(baseURL, apiKey string) *PushSender {
	return &PushSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PushSender) Send(ctx context.Context, userID, title, body string, data map[string]interface{}) error {
	payload := map[string]interface{}{
		"userId": userID,
		"title":  title,
		"body":   body,
		"data":   data,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	apiURL := p.baseURL + "/api/v1/push/send"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(raw))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push http error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push api error: status=%d response=%s", resp.StatusCode, string(respBody))
	}
	return nil
}
