package exchange

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetGlobalHTTPClient_Singleton(t *testing.T) {
	first := GetGlobalHTTPClient()
	second := GetGlobalHTTPClient()

	if first != second {
		t.Error("expected the same global client instance")
	}
	if first.GetClient() == nil {
		t.Error("expected initialized http.Client")
	}
}

func TestNewHTTPClient_AppliesTotalTimeout(t *testing.T) {
	cfg := DefaultHTTPClientConfig()
	cfg.TotalTimeout = 7 * time.Second

	hc := NewHTTPClient(cfg)
	if hc.GetClient().Timeout != 7*time.Second {
		t.Errorf("expected timeout 7s, got %v", hc.GetClient().Timeout)
	}
}

func TestHTTPClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body: %s", body)
	}
}
