package tron

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{
		baseURL:    srv.URL,
		apiKey:     "test-key",
		flatFee:    1.1,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGetAddressBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallet/getaccount" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("TRON-PRO-API-KEY"); got != "test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["address"] != "TTestAddress" {
			t.Errorf("unexpected address %v", req["address"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"balance": 5_500_000})
	}))
	defer srv.Close()

	balance, err := testClient(srv).GetAddressBalance(context.Background(), "TTestAddress")
	if err != nil {
		t.Fatalf("GetAddressBalance failed: %v", err)
	}
	if balance != 5.5 {
		t.Errorf("expected 5.5 TRX, got %v", balance)
	}
}

func TestGenerateDepositAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallet/generateaddress" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"address":    "TNewAddress",
			"privateKey": "deadbeef",
		})
	}))
	defer srv.Close()

	acct, err := testClient(srv).GenerateDepositAddress(context.Background())
	if err != nil {
		t.Fatalf("GenerateDepositAddress failed: %v", err)
	}
	if acct.Address != "TNewAddress" || acct.PrivateKey != "deadbeef" {
		t.Errorf("unexpected account %+v", acct)
	}
}

func TestGenerateDepositAddressRejectsEmptyAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	if _, err := testClient(srv).GenerateDepositAddress(context.Background()); err == nil {
		t.Error("empty node response should be an error")
	}
}

func TestIsValidAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]bool{"result": req["address"] == "TGood"})
	}))
	defer srv.Close()

	c := testClient(srv)
	if !c.IsValidAddress(context.Background(), "TGood") {
		t.Error("expected TGood to validate")
	}
	if c.IsValidAddress(context.Background(), "TBad") {
		t.Error("expected TBad to fail validation")
	}
}

func TestSendTRX(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/wallet/createtransaction":
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			if req["amount"] != float64(2_500_000) {
				t.Errorf("expected amount in Sun, got %v", req["amount"])
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"raw_data": map[string]interface{}{}, "txID": "abc123"})
		case "/wallet/gettransactionsign":
			json.NewEncoder(w).Encode(map[string]interface{}{"signature": []string{"sig"}, "txID": "abc123"})
		case "/wallet/broadcasttransaction":
			json.NewEncoder(w).Encode(map[string]interface{}{"result": true, "txid": "abc123"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	txid, err := testClient(srv).SendTRX(context.Background(), "privkey", "TFrom", "TTo", 2.5)
	if err != nil {
		t.Fatalf("SendTRX failed: %v", err)
	}
	if txid != "abc123" {
		t.Errorf("expected txid abc123, got %q", txid)
	}
	if len(paths) != 3 {
		t.Errorf("expected create/sign/broadcast sequence, got %v", paths)
	}
}

func TestSendTRXBroadcastRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/broadcasttransaction":
			json.NewEncoder(w).Encode(map[string]interface{}{"result": false, "message": "SIGERROR"})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"txID": "abc123"})
		}
	}))
	defer srv.Close()

	if _, err := testClient(srv).SendTRX(context.Background(), "privkey", "TFrom", "TTo", 1); err == nil {
		t.Error("rejected broadcast should be an error")
	}
}

func TestSunConversion(t *testing.T) {
	if ToSun(1) != 1_000_000 {
		t.Errorf("ToSun(1) = %d", ToSun(1))
	}
	if FromSun(2_500_000) != 2.5 {
		t.Errorf("FromSun(2500000) = %v", FromSun(2_500_000))
	}
}
