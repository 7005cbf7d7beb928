package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSSender posts messages to the SMS gateway's HTTP API.
type SMSSender struct {
	baseURL  string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewSMSSender(baseURL, apiKey, senderID string) *SMSSender {
	return &SMSSender{
		baseURL:  baseURL,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSSender) Send(ctx context.Context, recipient, body string) error {
	form := url.Values{}
	form.Set("senderid", s.senderID)
	form.Set("msgType", "text")
	form.Set("msg", body)
	form.Set("mobile", recipient)
	form.Set("duplicatecheck", "true")
	form.Set("output", "json")

	apiURL := s.baseURL + "/SMSApi/send"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms api error: %s", string(respBody))
	}
	return nil
}
