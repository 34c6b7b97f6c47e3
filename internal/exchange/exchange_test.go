package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/polybot/internal/domain"
	"github.com/betbot/polybot/pkg/retry"
	"github.com/betbot/polybot/pkg/secretstore"
)

func testRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func buyRequest() domain.OrderRequest {
	return domain.OrderRequest{
		MarketID:    "m1",
		TokenID:     "tok-1",
		Side:        domain.OrderSideBuy,
		Shares:      decimal.RequireFromString("11.62"),
		Probability: 0.86,
	}
}

func TestClobSubmitBuyFill(t *testing.T) {
	var gotPayload orderPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("POLY-API-KEY") != "ak" {
			t.Errorf("凭证头缺失, 实际为 %q", r.Header.Get("POLY-API-KEY"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("解析订单体失败: %v", err)
		}
		fmt.Fprint(w, `{"success":true,"orderId":"ord-1","status":"matched"}`)
	}))
	defer srv.Close()

	e := NewClobExecutor(ClobConfig{BaseURL: srv.URL, Retry: testRetry()},
		secretstore.Credentials{APIKey: "ak", APISecret: "as", Passphrase: "pp"})

	fill, err := e.SubmitBuy(context.Background(), buyRequest())
	if err != nil {
		t.Fatalf("买单应成交: %v", err)
	}
	if fill.OrderID != "ord-1" {
		t.Errorf("订单号应为 ord-1，实际为 %s", fill.OrderID)
	}
	if !fill.Shares.Equal(decimal.RequireFromString("11.62")) {
		t.Errorf("成交份额不符: %s", fill.Shares)
	}
	if gotPayload.Side != "BUY" || gotPayload.TokenID != "tok-1" || gotPayload.Price != "0.86" {
		t.Errorf("订单体不符: %+v", gotPayload)
	}
}

func TestClobRejectedOrderIsNoFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorMsg":"insufficient balance"}`)
	}))
	defer srv.Close()

	e := NewClobExecutor(ClobConfig{BaseURL: srv.URL, Retry: testRetry()}, secretstore.Credentials{})
	_, err := e.SubmitBuy(context.Background(), buyRequest())
	if err == nil {
		t.Fatal("被拒绝的订单必须返回错误")
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Errorf("错误应携带拒绝原因: %v", err)
	}
}

func TestClobRetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"success":true,"orderId":"ord-2","status":"matched"}`)
	}))
	defer srv.Close()

	e := NewClobExecutor(ClobConfig{BaseURL: srv.URL, Retry: testRetry()}, secretstore.Credentials{})
	fill, err := e.SubmitSell(context.Background(), buyRequest())
	if err != nil {
		t.Fatalf("503 后重试应成交: %v", err)
	}
	if calls != 2 || fill.OrderID != "ord-2" {
		t.Errorf("应重试一次并成交: calls=%d order=%s", calls, fill.OrderID)
	}
}

func TestClobBadRequestNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewClobExecutor(ClobConfig{BaseURL: srv.URL, Retry: testRetry()}, secretstore.Credentials{})
	if _, err := e.SubmitBuy(context.Background(), buyRequest()); err == nil {
		t.Fatal("400 应返回错误")
	}
	if calls != 1 {
		t.Errorf("400 不应重试，实际请求 %d 次", calls)
	}
}

func TestSimulatorFillsAtSnapshotProbability(t *testing.T) {
	sim := NewSimulator()

	fill, err := sim.SubmitBuy(context.Background(), buyRequest())
	if err != nil {
		t.Fatalf("模拟撮合不应失败: %v", err)
	}
	if fill.Probability != 0.86 {
		t.Errorf("模拟成交价应为快照概率 0.86，实际为 %f", fill.Probability)
	}
	if !strings.HasPrefix(fill.OrderID, "sim-") {
		t.Errorf("模拟订单号应带 sim- 前缀: %s", fill.OrderID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.SubmitSell(ctx, buyRequest()); err == nil {
		t.Error("已取消的 context 下不应成交")
	}
}
