package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// InfobipConfig identifies the 2FA application and message template.
type InfobipConfig struct {
	BaseURL    string
	APIKey     string
	AppID      string
	MessageID  string
	SenderFrom string
}

// InfobipClient implements Provider on top of the Infobip 2FA PIN API.
type InfobipClient struct {
	cfg        InfobipConfig
	HTTPClient *http.Client
}

// NewInfobipClient returns a client for the given account. A BaseURL without
// scheme is treated as https.
func NewInfobipClient(cfg InfobipConfig) *InfobipClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "https://" + base
	}
	cfg.BaseURL = base
	return &InfobipClient{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type sendPinRequest struct {
	ApplicationID string `json:"applicationId"`
	MessageID     string `json:"messageId"`
	From          string `json:"from,omitempty"`
	To            string `json:"to"`
}

type sendPinResponse struct {
	PinID string `json:"pinId"`
}

type verifyPinRequest struct {
	Pin string `json:"pin"`
}

type verifyPinResponse struct {
	Verified          bool   `json:"verified"`
	PinError          string `json:"pinError"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

// SendChallenge asks Infobip to deliver a PIN and returns its pinId.
func (c *InfobipClient) SendChallenge(ctx context.Context, phone string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("infobip: API key not configured")
	}
	status, body, err := c.post(ctx, "/2fa/2/pin", sendPinRequest{
		ApplicationID: c.cfg.AppID,
		MessageID:     c.cfg.MessageID,
		From:          c.cfg.SenderFrom,
		To:            phone,
	})
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("infobip: send pin failed status=%d body=%s", status, string(body))
	}
	var resp sendPinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("infobip: decode send pin response: %w", err)
	}
	if resp.PinID == "" {
		return "", errors.New("infobip: empty pinId")
	}
	return resp.PinID, nil
}

// CheckChallenge verifies code against the PIN identified by reference.
// Infobip answers a wrong PIN with a client error that still carries
// verified=false; that is a mismatch, not a failure.
func (c *InfobipClient) CheckChallenge(ctx context.Context, reference, code string) (bool, error) {
	if c.cfg.APIKey == "" {
		return false, fmt.Errorf("infobip: API key not configured")
	}
	status, body, err := c.post(ctx, "/2fa/2/pin/"+url.PathEscape(reference)+"/verify", verifyPinRequest{Pin: code})
	if err != nil {
		return false, err
	}
	var resp verifyPinResponse
	decodeErr := json.Unmarshal(body, &resp)
	switch {
	case status >= 200 && status < 300:
		if decodeErr != nil {
			return false, fmt.Errorf("infobip: decode verify response: %w", decodeErr)
		}
		return resp.Verified, nil
	case status >= 400 && status < 500 && decodeErr == nil && resp.PinError != "":
		return false, nil
	default:
		return false, fmt.Errorf("infobip: verify pin failed status=%d body=%s", status, string(body))
	}
}

func (c *InfobipClient) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "App "+c.cfg.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("infobip: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("infobip: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
