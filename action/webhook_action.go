package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaypoint/relaypoint/logger"
	"go.uber.org/zap"
)

var _ Action = new(webhookAction)

// webhookAction posts the configured payload to a url. Config fields:
// url (required), method, payload, headers, timeoutMs. Responses with a 5xx
// status fail the stage; anything below is treated as delivered.
type webhookAction struct {
	client *http.Client
}

func NewWebhookAction() *webhookAction {
	return &webhookAction{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *webhookAction) GetName() string {
	return ACTION_TYPE_WEBHOOK_POST
}

func (a *webhookAction) Validate(config map[string]any) error {
	rawUrl, ok := stringParam(config, "url")
	if !ok {
		return fmt.Errorf("webhook action requires \"url\" in config")
	}
	if !strings.Contains(rawUrl, "{") {
		if _, err := url.ParseRequestURI(rawUrl); err != nil {
			return fmt.Errorf("invalid webhook url %q", rawUrl)
		}
	}
	return nil
}

func (a *webhookAction) Execute(config map[string]any) (map[string]any, error) {
	rawUrl, ok := stringParam(config, "url")
	if !ok {
		return nil, fmt.Errorf("webhook action requires \"url\" in config")
	}
	if _, err := url.ParseRequestURI(rawUrl); err != nil {
		return nil, fmt.Errorf("invalid webhook url %q", rawUrl)
	}
	method := http.MethodPost
	if m, ok := stringParam(config, "method"); ok {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if payload, ok := config["payload"]; ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, rawUrl, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RelayPoint-Webhook/1.0")
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	client := a.client
	if timeoutMs, ok := numberParam(config, "timeoutMs"); ok && timeoutMs > 0 {
		client = &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("webhook target returned status %d", resp.StatusCode)
	}
	logger.Info("webhook delivered", zap.String("url", rawUrl), zap.Int("status", resp.StatusCode))
	return map[string]any{
		"statusCode": resp.StatusCode,
		"body":       string(respBody),
	}, nil
}
