package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(baseURL string) *InfobipClient {
	return NewInfobipClient(InfobipConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		AppID:      "app-1",
		MessageID:  "msg-1",
		SenderFrom: "447491163443",
	})
}

func TestNewInfobipClient_Defaults(t *testing.T) {
	client := NewInfobipClient(InfobipConfig{BaseURL: "api.infobip.test/", APIKey: "k"})
	if client.cfg.BaseURL != "https://api.infobip.test" {
		t.Errorf("BaseURL = %q, want https scheme and no trailing slash", client.cfg.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient timeout not set to %v", defaultTimeout)
	}
}

func TestSendChallenge_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2fa/2/pin" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "App test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["applicationId"] != "app-1" || body["messageId"] != "msg-1" || body["to"] != "84912345678" {
			t.Errorf("unexpected payload %v", body)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"pinId":"PIN-1","to":"84912345678","smsStatus":"MESSAGE_SENT"}`))
	}))
	defer server.Close()

	ref, err := newTestClient(server.URL).SendChallenge(context.Background(), "84912345678")
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}
	if ref != "PIN-1" {
		t.Fatalf("ref = %q, want PIN-1", ref)
	}
}

func TestSendChallenge_EmptyPinID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).SendChallenge(context.Background(), "84912345678"); err == nil {
		t.Fatal("expected error for empty pinId")
	}
}

func TestSendChallenge_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"requestError":{"serviceException":{"messageId":"UNAUTHORIZED"}}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SendChallenge(context.Background(), "84912345678")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Errorf("error = %q, want status=401", err.Error())
	}
}

func TestSendChallenge_MissingAPIKey(t *testing.T) {
	client := NewInfobipClient(InfobipConfig{BaseURL: "http://unused"})
	if _, err := client.SendChallenge(context.Background(), "84912345678"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestSendChallenge_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := newTestClient(server.URL).SendChallenge(ctx, "84912345678"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCheckChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2fa/2/pin/PIN-1/verify" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"requestError":{}}`))
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["pin"] == "123456" {
			w.Write([]byte(`{"pinId":"PIN-1","verified":true,"attemptsRemaining":0}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"pinId":"PIN-1","verified":false,"pinError":"WRONG_PIN","attemptsRemaining":4}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	ok, err := client.CheckChallenge(ctx, "PIN-1", "123456")
	if err != nil || !ok {
		t.Fatalf("expected verified, got ok=%v err=%v", ok, err)
	}

	ok, err = client.CheckChallenge(ctx, "PIN-1", "000000")
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, got ok=%v err=%v", ok, err)
	}

	if _, err := client.CheckChallenge(ctx, "PIN-2", "123456"); err == nil {
		t.Fatal("expected error for unknown pin without pinError")
	}
}
