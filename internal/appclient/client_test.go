package appclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/g960059/puppeteer/internal/api"
	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/daemon"
	"github.com/g960059/puppeteer/internal/model"
	"github.com/g960059/puppeteer/internal/testutil"
)

func transactionServer(t *testing.T, tx model.Transfer) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/transactions/7" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-02-13T00:00:00Z","error":{"code":"E_NOT_FOUND","message":"transfer not found"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(api.TransactionEnvelope{SchemaVersion: api.SchemaVersion, Transaction: tx})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWithdrawalReleasable(t *testing.T) {
	cases := []struct {
		name   string
		kind   model.InstructionKind
		status model.TransferStatus
		want   bool
	}{
		{name: "acknowledged undelegate", kind: model.KindUndelegate, status: model.TransferAcknowledged, want: true},
		{name: "pending undelegate", kind: model.KindUndelegate, status: model.TransferPending},
		{name: "timed out undelegate", kind: model.KindUndelegate, status: model.TransferTimedOut},
		{name: "acknowledged delegate", kind: model.KindDelegate, status: model.TransferAcknowledged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := transactionServer(t, model.Transfer{Sequence: 7, Kind: tc.kind, Status: tc.status, Amount: decimal.NewFromInt(5)})
			client := NewWithClient(srv.URL, srv.Client())
			got, err := client.WithdrawalReleasable(context.Background(), 7)
			if err != nil {
				t.Fatalf("releasable: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected releasable=%v, got %v", tc.want, got)
			}
		})
	}
}

func TestWithdrawalReleasableUnknownSequence(t *testing.T) {
	srv := transactionServer(t, model.Transfer{})
	client := NewWithClient(srv.URL, srv.Client())
	ok, err := client.WithdrawalReleasable(context.Background(), 8)
	if ok {
		t.Fatalf("unknown sequence must not be releasable")
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T (%v)", err, err)
	}
	if reqErr.StatusCode != http.StatusNotFound || reqErr.Code != model.CodeNotFound {
		t.Fatalf("unexpected request error: %+v", reqErr)
	}
}

func TestRequestErrorFallsBackToHTTPCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client())
	_, err := client.State(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T (%v)", err, err)
	}
	if reqErr.Code != "HTTP_502" || reqErr.Message != "upstream down" {
		t.Fatalf("unexpected request error: %+v", reqErr)
	}
	if !reqErr.Retryable() {
		t.Fatalf("502 should be retryable")
	}
}

func TestTransactionsAndOutboxEncodeQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "pending" {
			t.Fatalf("expected status=pending, got %q", got)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","transactions":[{"sequence":3,"status":"pending","amount":"10"}]}`)
	})
	mux.HandleFunc("/v1/outbox", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("after") != "4" || q.Get("limit") != "2" {
			t.Fatalf("unexpected outbox query: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","items":[],"next_after":4}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client())
	txs, err := client.Transactions(context.Background(), model.TransferPending)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs.Transactions) != 1 || txs.Transactions[0].Sequence != 3 {
		t.Fatalf("unexpected transactions: %+v", txs)
	}
	outbox, err := client.Outbox(context.Background(), 4, 2)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if outbox.NextAfter != 4 || len(outbox.Items) != 0 {
		t.Fatalf("unexpected outbox: %+v", outbox)
	}
}

func TestWaitResolvedPollsUntilTerminal(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions/2", func(w http.ResponseWriter, r *http.Request) {
		status := model.TransferPending
		if calls.Add(1) >= 3 {
			status = model.TransferAcknowledged
		}
		_ = json.NewEncoder(w).Encode(api.TransactionEnvelope{SchemaVersion: api.SchemaVersion, Transaction: model.Transfer{Sequence: 2, Status: status}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := NewWithClient(srv.URL, srv.Client())
	tx, err := client.WaitResolved(ctx, 2, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait resolved: %v", err)
	}
	if tx.Status != model.TransferAcknowledged || calls.Load() != 3 {
		t.Fatalf("unexpected result %+v after %d calls", tx, calls.Load())
	}
}

func TestWaitResolvedStopsOnContextCancel(t *testing.T) {
	srv := transactionServer(t, model.Transfer{Sequence: 7, Status: model.TransferPending})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	client := NewWithClient(srv.URL, srv.Client())
	_, err := client.WaitResolved(ctx, 7, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClientAgainstDaemonHandler(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	testutil.SeedInstance(t, store, ctx)
	d := daemon.NewServerWithDeps(config.DefaultConfig(), daemon.Deps{Store: store, Logger: zerolog.Nop()})
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()
	client := NewWithClient(srv.URL, srv.Client())

	health, err := client.Health(ctx)
	if err != nil || !health.Initialized {
		t.Fatalf("health: %+v err=%v", health, err)
	}
	sub, err := client.Submit(ctx, api.SubmitRequest{Sender: testutil.Owner, Kind: "undelegate", Target: "V1", Amount: decimal.NewFromInt(40)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	seq := sub.Transaction.Sequence
	if ok, err := client.WithdrawalReleasable(ctx, seq); err != nil || ok {
		t.Fatalf("pending undelegate must not be releasable: ok=%v err=%v", ok, err)
	}
	ack, err := client.Ack(ctx, model.Ack{Sequence: seq, Outcome: model.AckSuccess})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Result.Status != model.StatusIdle {
		t.Fatalf("expected idle after ack, got %+v", ack.Result)
	}
	if ok, err := client.WithdrawalReleasable(ctx, seq); err != nil || !ok {
		t.Fatalf("acknowledged undelegate must be releasable: ok=%v err=%v", ok, err)
	}

	_, err = client.Submit(ctx, api.SubmitRequest{Sender: "mallory", Kind: "delegate", Target: "V1", Amount: decimal.NewFromInt(1)})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusForbidden || reqErr.Retryable() {
		t.Fatalf("expected non-retryable 403, got %v", err)
	}

	events, err := client.Events(ctx, &seq, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events.Events) < 2 {
		t.Fatalf("expected submit and ack events, got %+v", events.Events)
	}
}

func TestRequestErrorStringIncludesCodeWithoutMessage(t *testing.T) {
	err := (&RequestError{StatusCode: http.StatusConflict, Code: model.CodeNeedsResync}).Error()
	if !strings.Contains(err, model.CodeNeedsResync) {
		t.Fatalf("expected error string to include code, got %q", err)
	}
	if !strings.Contains(err, "409") {
		t.Fatalf("expected error string to include status code, got %q", err)
	}
}

func TestRequestErrorStringIncludesCodeWithoutStatus(t *testing.T) {
	err := (&RequestError{Code: model.CodeNeedsResync}).Error()
	if err != model.CodeNeedsResync {
		t.Fatalf("expected code-only error string, got %q", err)
	}
}

func TestWithUnaryTimeoutReturnsClonedClient(t *testing.T) {
	base := NewWithClient("http://example.invalid", &http.Client{})
	updated := base.WithUnaryTimeout(25 * time.Millisecond)
	if updated == base {
		t.Fatalf("expected cloned client instance")
	}
	if base.unaryTimeout != defaultUnaryTimeout {
		t.Fatalf("expected original timeout unchanged, got %s", base.unaryTimeout)
	}
	if updated.unaryTimeout != 25*time.Millisecond {
		t.Fatalf("expected updated timeout, got %s", updated.unaryTimeout)
	}
}
