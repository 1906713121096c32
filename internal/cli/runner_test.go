package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/daemon"
	"github.com/g960059/puppeteer/internal/testutil"
)

func newDaemonRunner(t *testing.T, seed bool) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	store, ctx := testutil.NewStore(t)
	if seed {
		testutil.SeedInstance(t, store, ctx)
	}
	d := daemon.NewServerWithDeps(config.DefaultConfig(), daemon.Deps{Store: store, Logger: zerolog.Nop()})
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewRunnerWithClient(srv.URL, srv.Client(), out, errOut), out, errOut
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestStateJSONCallsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-02-13T00:00:00Z","state":{"status":"idle","snapshot":{"height":3,"delegations":[]},"pending":[],"ica":{"status":"registered"}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"state", "--json"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"state"`) {
		t.Fatalf("expected state JSON output, got: %s", out.String())
	}

	out.Reset()
	if code := r.Run(context.Background(), []string{"state"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "status\tidle") || !strings.Contains(out.String(), "snapshot_height\t3") {
		t.Fatalf("expected tabular state output, got: %s", out.String())
	}
}

func TestUnknownCommandPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient("http://example.invalid", &http.Client{}, out, errOut)
	if code := r.Run(context.Background(), []string{"bogus"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: bogus") || !strings.Contains(errOut.String(), "usage: puppeteer") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestParseGlobalArgsSocketRequiresValue(t *testing.T) {
	if _, _, err := parseGlobalArgs([]string{"state", "--socket"}); err == nil {
		t.Fatalf("expected error for missing socket value")
	}
	socket, rest, err := parseGlobalArgs([]string{"--socket", "/tmp/p.sock", "txs", "--status", "pending"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if socket != "/tmp/p.sock" || strings.Join(rest, " ") != "txs --status pending" {
		t.Fatalf("unexpected parse result socket=%q rest=%v", socket, rest)
	}
}

func TestSubmitValidatesFlagsLocally(t *testing.T) {
	r, _, errOut := newDaemonRunner(t, true)
	if code := r.Run(context.Background(), []string{"submit", "--sender", testutil.Owner, "--kind", "delegate"}); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
	errOut.Reset()
	if code := r.Run(context.Background(), []string{"submit", "--sender", testutil.Owner, "--kind", "delegate", "--target", "V1", "--amount", "ten"}); code != 2 {
		t.Fatalf("expected exit 2 for bad amount, got %d", code)
	}
	if !strings.Contains(errOut.String(), "invalid --amount") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestSubmitAckAndReleaseCheckAgainstDaemon(t *testing.T) {
	r, out, errOut := newDaemonRunner(t, true)
	ctx := context.Background()

	if code := r.Run(ctx, []string{"submit", "--sender", testutil.Owner, "--kind", "undelegate", "--target", "V1", "--amount", "25"}); code != 0 {
		t.Fatalf("submit: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "submitted sequence=1 channel="+testutil.ChannelID) {
		t.Fatalf("unexpected submit output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"release-check", "--seq", "1"}); code != 3 {
		t.Fatalf("pending undelegate: expected exit 3, got %d", code)
	}
	if !strings.Contains(out.String(), "not releasable") {
		t.Fatalf("unexpected release-check output: %s", out.String())
	}

	snap := writeFile(t, "snap.json", `{"height":5,"delegations":[{"validator":"V1","amount":"75"}]}`)
	out.Reset()
	if code := r.Run(ctx, []string{"ack", "--seq", "1", "--outcome", "success", "--snapshot-file", snap}); code != 0 {
		t.Fatalf("ack: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "transfer=acknowledged status=idle") {
		t.Fatalf("unexpected ack output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"ack", "--seq", "1", "--outcome", "success"}); code != 0 {
		t.Fatalf("retransmitted ack: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "ignored") {
		t.Fatalf("expected ignored ack output, got: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"release-check", "--seq", "1", "--json"}); code != 0 {
		t.Fatalf("release-check: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"releasable":true`) {
		t.Fatalf("unexpected release-check JSON: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"delegations"}); code != 0 {
		t.Fatalf("delegations: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "V1\tconfirmed=75") || !strings.Contains(out.String(), "fully_confirmed=true") {
		t.Fatalf("unexpected delegations output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"outbox"}); code != 0 {
		t.Fatalf("outbox: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "MsgUndelegate") || !strings.Contains(out.String(), "next_after=1") {
		t.Fatalf("unexpected outbox output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"txs", "--status", "acknowledged"}); code != 0 {
		t.Fatalf("txs: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.HasPrefix(out.String(), "1\tundelegate\tV1\t25") {
		t.Fatalf("unexpected txs output: %s", out.String())
	}
}

func TestErrorAckForcesResyncFlow(t *testing.T) {
	r, out, errOut := newDaemonRunner(t, true)
	ctx := context.Background()

	if code := r.Run(ctx, []string{"submit", "--sender", testutil.Owner, "--kind", "delegate", "--target", "V1", "--amount", "10"}); code != 0 {
		t.Fatalf("submit: exit %d stderr=%s", code, errOut.String())
	}
	if code := r.Run(ctx, []string{"ack", "--seq", "1", "--outcome", "error", "--error", "out of gas"}); code != 0 {
		t.Fatalf("ack: exit %d stderr=%s", code, errOut.String())
	}

	errOut.Reset()
	if code := r.Run(ctx, []string{"submit", "--sender", testutil.Owner, "--kind", "delegate", "--target", "V1", "--amount", "10"}); code != 1 {
		t.Fatalf("expected submit to fail while resync is required, got %d", code)
	}
	if !strings.Contains(errOut.String(), "E_NEEDS_RESYNC") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}

	snap := writeFile(t, "resync.json", `{"height":9,"delegations":[{"validator":"V1","amount":"10"}]}`)
	out.Reset()
	if code := r.Run(ctx, []string{"resync", "--sender", testutil.Owner, "--snapshot-file", snap}); code != 0 {
		t.Fatalf("resync: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "resynced height=9 status=idle") {
		t.Fatalf("unexpected resync output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"status"}); code != 0 {
		t.Fatalf("status: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "status=idle pending=0 ica=registered height=9") {
		t.Fatalf("unexpected status output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"events", "--seq", "1"}); code != 0 {
		t.Fatalf("events: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "ack_error") {
		t.Fatalf("expected ack_error event, got: %s", out.String())
	}
}

func TestInstantiateAndICALifecycle(t *testing.T) {
	r, out, errOut := newDaemonRunner(t, false)
	ctx := context.Background()

	if code := r.Run(ctx, []string{"status"}); code != 0 {
		t.Fatalf("status: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "not instantiated") {
		t.Fatalf("unexpected status output: %s", out.String())
	}

	cfg := writeFile(t, "config.json", `{"connection_id":"connection-0","port_id":"icacontroller-p","update_period":60,"remote_denom":"uatom","owner":"neutron1owner","fees":{"recv_fee":"0","ack_fee":"10","timeout_fee":"10","register_fee":"100"},"updated_at":"0001-01-01T00:00:00Z"}`)
	out.Reset()
	if code := r.Run(ctx, []string{"instantiate", "--file", cfg}); code != 0 {
		t.Fatalf("instantiate: exit %d stderr=%s", code, errOut.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"config", "set", "--sender", "neutron1owner", "--update-period", "120"}); code != 0 {
		t.Fatalf("config set: exit %d stderr=%s", code, errOut.String())
	}
	out.Reset()
	if code := r.Run(ctx, []string{"config"}); code != 0 {
		t.Fatalf("config show: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "update_period\t120s") || !strings.Contains(out.String(), "remote_denom\tuatom") {
		t.Fatalf("unexpected config output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(ctx, []string{"ica", "register", "--sender", "neutron1owner"}); code != 0 {
		t.Fatalf("ica register: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "ica in_progress") {
		t.Fatalf("unexpected register output: %s", out.String())
	}
	out.Reset()
	if code := r.Run(ctx, []string{"ica", "open", "--channel", "channel-3", "--address", "cosmos1ica"}); code != 0 {
		t.Fatalf("ica open: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "ica registered channel-3 cosmos1ica") {
		t.Fatalf("unexpected open output: %s", out.String())
	}
	out.Reset()
	if code := r.Run(ctx, []string{"ica", "close", "--channel", "channel-3"}); code != 0 {
		t.Fatalf("ica close: exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "ica closed status=idle") {
		t.Fatalf("unexpected close output: %s", out.String())
	}
}
