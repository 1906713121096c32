package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/g960059/puppeteer/internal/api"
	"github.com/g960059/puppeteer/internal/appclient"
	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/model"
)

type Runner struct {
	baseURL string
	client  *http.Client
	api     *appclient.Client
	out     io.Writer
	errOut  io.Writer
}

const maxSnapshotFileBytes int64 = 1 << 20

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewRunnerWithClient("http://unix", &http.Client{Transport: transport}, out, errOut)
}

func NewRunnerWithClient(baseURL string, client *http.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if client == nil {
		client = &http.Client{}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Runner{
		baseURL: baseURL,
		client:  client,
		api:     appclient.NewWithClient(baseURL, client),
		out:     out,
		errOut:  errOut,
	}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" && r.baseURL == "http://unix" {
		*r = *NewRunner(socketPath, r.out, r.errOut)
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "status":
		return r.runStatus(ctx, rest[1:])
	case "instantiate":
		return r.runInstantiate(ctx, rest[1:])
	case "config":
		return r.runConfig(ctx, rest[1:])
	case "state":
		return r.runState(ctx, rest[1:])
	case "txs":
		return r.runTxs(ctx, rest[1:])
	case "delegations":
		return r.runDelegations(ctx, rest[1:])
	case "submit":
		return r.runSubmit(ctx, rest[1:])
	case "ack":
		return r.runAck(ctx, rest[1:])
	case "resync":
		return r.runResync(ctx, rest[1:])
	case "snapshot":
		return r.runSnapshot(ctx, rest[1:])
	case "ica":
		return r.runICA(ctx, rest[1:])
	case "outbox":
		return r.runOutbox(ctx, rest[1:])
	case "events":
		return r.runEvents(ctx, rest[1:])
	case "release-check":
		return r.runReleaseCheck(ctx, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socket := config.DefaultConfig().SocketPath
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--socket" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires value")
			}
			socket = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return socket, rest, nil
}

func newFlagSet(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs, fs.Bool("json", false, "output JSON")
}

func (r *Runner) parse(fs *flag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return false
	}
	return true
}

func (r *Runner) runStatus(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("status")
	if !r.parse(fs, args) {
		return 2
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/health", nil, nil)
	if err != nil {
		return r.handleErr(err)
	}
	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return r.handleErr(err)
	}
	if !health.Initialized {
		if *jsonOut {
			return r.writeRaw(body)
		}
		_, _ = fmt.Fprintln(r.out, "daemon ok, not instantiated")
		return 0
	}
	body, err = r.request(ctx, http.MethodGet, "/v1/state", nil, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.StateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	st := env.State
	_, _ = fmt.Fprintf(r.out, "status=%s pending=%d ica=%s height=%d\n", st.Status, len(st.Pending), st.ICA.Status, st.Snapshot.Height)
	return 0
}

func (r *Runner) runInstantiate(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("instantiate")
	file := fs.String("file", "", "JSON config file")
	if !r.parse(fs, args) {
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer instantiate --file <config.json>")
		return 2
	}
	var cfg model.Config
	if err := readJSONFile(*file, &cfg); err != nil {
		return r.handleErr(err)
	}
	body, err := r.request(ctx, http.MethodPost, "/v1/instantiate", nil, cfg)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	_, _ = fmt.Fprintf(r.out, "instantiated owner=%s port=%s\n", cfg.Owner, cfg.PortID)
	return 0
}

func (r *Runner) runConfig(ctx context.Context, args []string) int {
	sub := "show"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}
	switch sub {
	case "show":
		fs, jsonOut := newFlagSet("config show")
		if !r.parse(fs, args) {
			return 2
		}
		body, err := r.request(ctx, http.MethodGet, "/v1/config", nil, nil)
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeRaw(body)
		}
		var env api.ConfigEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return r.handleErr(err)
		}
		c := env.Config
		_, _ = fmt.Fprintf(r.out, "owner\t%s\nconnection_id\t%s\nport_id\t%s\nupdate_period\t%ds\nremote_denom\t%s\n",
			c.Owner, c.ConnectionID, c.PortID, c.UpdatePeriod, c.RemoteDenom)
		_, _ = fmt.Fprintf(r.out, "fees\trecv=%s ack=%s timeout=%s register=%s\n",
			c.Fees.RecvFee, c.Fees.AckFee, c.Fees.TimeoutFee, c.Fees.RegisterFee)
		return 0
	case "set":
		fs, jsonOut := newFlagSet("config set")
		sender := fs.String("sender", "", "owner address")
		connectionID := fs.String("connection-id", "", "connection id")
		portID := fs.String("port-id", "", "port id")
		updatePeriod := fs.Uint64("update-period", 0, "update period in seconds")
		remoteDenom := fs.String("remote-denom", "", "remote denom")
		owner := fs.String("owner", "", "new owner")
		if !r.parse(fs, args) {
			return 2
		}
		var patch model.ConfigPatch
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if set["connection-id"] {
			patch.ConnectionID = connectionID
		}
		if set["port-id"] {
			patch.PortID = portID
		}
		if set["update-period"] {
			patch.UpdatePeriod = updatePeriod
		}
		if set["remote-denom"] {
			patch.RemoteDenom = remoteDenom
		}
		if set["owner"] {
			patch.Owner = owner
		}
		body, err := r.request(ctx, http.MethodPost, "/v1/config", nil, api.ConfigUpdateRequest{Sender: *sender, Patch: patch})
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeRaw(body)
		}
		_, _ = fmt.Fprintln(r.out, "config updated")
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown config command: %s\n", sub)
		return 2
	}
}

func (r *Runner) runState(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("state")
	if !r.parse(fs, args) {
		return 2
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/state", nil, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.StateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	st := env.State
	_, _ = fmt.Fprintf(r.out, "status\t%s\nica\t%s %s %s\nsnapshot_height\t%d\npending\t%s\n",
		st.Status, st.ICA.Status, st.ICA.ChannelID, st.ICA.Address, st.Snapshot.Height, joinSequences(st.Pending))
	for _, d := range st.Snapshot.Delegations {
		_, _ = fmt.Fprintf(r.out, "delegation\t%s\t%s\n", d.Validator, d.Amount)
	}
	return 0
}

func (r *Runner) runTxs(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("txs")
	status := fs.String("status", "", "filter by pending|acknowledged|timed_out")
	if !r.parse(fs, args) {
		return 2
	}
	query := url.Values{}
	if s := strings.TrimSpace(*status); s != "" {
		query.Set("status", s)
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/transactions", query, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.TransactionsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	for _, t := range env.Transactions {
		_, _ = fmt.Fprintf(r.out, "%d\t%s\t%s\t%s%s\t%s\t%s\n", t.Sequence, t.Kind, t.Target, t.Amount, t.Denom, t.Status, t.Reason)
	}
	return 0
}

func (r *Runner) runDelegations(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("delegations")
	if !r.parse(fs, args) {
		return 2
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/delegations", nil, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.DelegationsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	d := env.Delegations
	for _, e := range d.Delegations {
		_, _ = fmt.Fprintf(r.out, "%s\tconfirmed=%s\tpending=%s\testimated=%s\n", e.Validator, e.Confirmed, e.PendingDelta, e.Estimated)
	}
	_, _ = fmt.Fprintf(r.out, "total\tconfirmed=%s\testimated=%s\tfully_confirmed=%t\n", d.TotalConfirmed, d.TotalEstimated, d.FullyConfirmed)
	return 0
}

func (r *Runner) runSubmit(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("submit")
	sender := fs.String("sender", "", "caller address")
	kind := fs.String("kind", "", "delegate|undelegate|redeem|transfer")
	target := fs.String("target", "", "validator or recipient")
	amount := fs.String("amount", "", "integer amount")
	denom := fs.String("denom", "", "denom (defaults to remote denom; redeem needs <valoper>/<record> shares)")
	wait := fs.Bool("wait", false, "wait until the entry resolves")
	waitTimeout := fs.Duration("wait-timeout", 2*time.Minute, "maximum wait with --wait")
	if !r.parse(fs, args) {
		return 2
	}
	if strings.TrimSpace(*kind) == "" || strings.TrimSpace(*target) == "" || strings.TrimSpace(*amount) == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer submit --sender <addr> --kind <kind> --target <addr> --amount <n> [--denom <denom>] [--wait]")
		return 2
	}
	amt, err := decimal.NewFromString(strings.TrimSpace(*amount))
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: invalid --amount: %v\n", err)
		return 2
	}
	body, err := r.request(ctx, http.MethodPost, "/v1/submit", nil, api.SubmitRequest{
		Sender: *sender,
		Kind:   *kind,
		Target: *target,
		Amount: amt,
		Denom:  *denom,
	})
	if err != nil {
		return r.handleErr(err)
	}
	var env api.TransactionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	if !*wait {
		if *jsonOut {
			return r.writeRaw(body)
		}
		_, _ = fmt.Fprintf(r.out, "submitted sequence=%d channel=%s timeout_at=%s\n",
			env.Transaction.Sequence, env.Transaction.ChannelID, env.Transaction.TimeoutAt.Format(time.RFC3339))
		return 0
	}
	waitCtx, cancel := context.WithTimeout(ctx, *waitTimeout)
	defer cancel()
	t, err := r.api.WaitResolved(waitCtx, env.Transaction.Sequence, time.Second)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeJSON(api.TransactionEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: time.Now().UTC(), Transaction: t})
	}
	_, _ = fmt.Fprintf(r.out, "sequence=%d status=%s %s\n", t.Sequence, t.Status, t.Reason)
	return 0
}

func (r *Runner) runAck(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("ack")
	seq := fs.Uint64("seq", 0, "packet sequence")
	outcome := fs.String("outcome", string(model.AckSuccess), "success|error|timeout")
	snapshotFile := fs.String("snapshot-file", "", "JSON snapshot carried by a success ack")
	errMsg := fs.String("error", "", "remote error message")
	if !r.parse(fs, args) {
		return 2
	}
	if *seq == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer ack --seq <n> --outcome <success|error|timeout> [--snapshot-file <path>]")
		return 2
	}
	ack := model.Ack{Sequence: *seq, Outcome: model.AckOutcome(strings.TrimSpace(*outcome)), Error: *errMsg}
	if strings.TrimSpace(*snapshotFile) != "" {
		var snap model.Snapshot
		if err := readJSONFile(*snapshotFile, &snap); err != nil {
			return r.handleErr(err)
		}
		ack.Snapshot = &snap
	}
	body, err := r.request(ctx, http.MethodPost, "/v1/ack", nil, ack)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.AckEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	if env.Result.Ignored {
		_, _ = fmt.Fprintf(r.out, "ack for sequence %d ignored (no pending entry)\n", env.Result.Sequence)
		return 0
	}
	_, _ = fmt.Fprintf(r.out, "sequence=%d transfer=%s status=%s\n", env.Result.Sequence, env.Result.Transfer, env.Result.Status)
	return 0
}

func (r *Runner) runResync(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("resync")
	sender := fs.String("sender", "", "owner address")
	snapshotFile := fs.String("snapshot-file", "", "JSON snapshot")
	if !r.parse(fs, args) {
		return 2
	}
	if strings.TrimSpace(*snapshotFile) == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer resync --sender <owner> --snapshot-file <path>")
		return 2
	}
	var snap model.Snapshot
	if err := readJSONFile(*snapshotFile, &snap); err != nil {
		return r.handleErr(err)
	}
	body, err := r.request(ctx, http.MethodPost, "/v1/resync", nil, api.ResyncRequest{Sender: *sender, Snapshot: snap})
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.StateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "resynced height=%d status=%s\n", env.State.Snapshot.Height, env.State.Status)
	return 0
}

func (r *Runner) runSnapshot(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("snapshot")
	file := fs.String("file", "", "JSON snapshot from a remote query")
	if !r.parse(fs, args) {
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer snapshot --file <path>")
		return 2
	}
	var snap model.Snapshot
	if err := readJSONFile(*file, &snap); err != nil {
		return r.handleErr(err)
	}
	body, err := r.request(ctx, http.MethodPost, "/v1/remote-snapshot", nil, snap)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.SnapshotEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	if !env.Applied {
		_, _ = fmt.Fprintf(r.out, "snapshot height=%d is stale, ignored\n", snap.Height)
		return 0
	}
	_, _ = fmt.Fprintf(r.out, "snapshot height=%d applied status=%s\n", snap.Height, env.State.Status)
	return 0
}

func (r *Runner) runICA(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer ica <register|open|close>")
		return 2
	}
	var (
		path string
		body any
	)
	fs, jsonOut := newFlagSet("ica " + args[0])
	switch args[0] {
	case "register":
		sender := fs.String("sender", "", "owner address")
		if !r.parse(fs, args[1:]) {
			return 2
		}
		path, body = "/v1/ica/register", api.ICARegisterRequest{Sender: *sender}
	case "open":
		channel := fs.String("channel", "", "channel id")
		address := fs.String("address", "", "interchain account address")
		if !r.parse(fs, args[1:]) {
			return 2
		}
		path, body = "/v1/channel/open", api.ChannelOpenRequest{ChannelID: *channel, Address: *address}
	case "close":
		channel := fs.String("channel", "", "channel id")
		if !r.parse(fs, args[1:]) {
			return 2
		}
		path, body = "/v1/channel/close", api.ChannelCloseRequest{ChannelID: *channel}
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown ica command: %s\n", args[0])
		return 2
	}
	resp, err := r.request(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(resp)
	}
	if args[0] == "close" {
		var env api.StateEnvelope
		if err := json.Unmarshal(resp, &env); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "ica %s status=%s\n", env.State.ICA.Status, env.State.Status)
		return 0
	}
	var env api.ICAEnvelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "ica %s %s %s\n", env.ICA.Status, env.ICA.ChannelID, env.ICA.Address)
	return 0
}

func (r *Runner) runOutbox(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("outbox")
	after := fs.Uint64("after", 0, "list packets after this sequence")
	limit := fs.Int("limit", 0, "page size")
	if !r.parse(fs, args) {
		return 2
	}
	query := url.Values{}
	query.Set("after", strconv.FormatUint(*after, 10))
	if *limit > 0 {
		query.Set("limit", strconv.Itoa(*limit))
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/outbox", query, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.OutboxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	for _, item := range env.Items {
		_, _ = fmt.Fprintf(r.out, "%d\t%s/%s\t%s\t%d bytes\t%s\n", item.Sequence, item.PortID, item.ChannelID,
			strings.Join(item.MessageTypes, ","), len(item.Data), item.TimeoutAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(r.out, "next_after=%d\n", env.NextAfter)
	return 0
}

func (r *Runner) runEvents(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("events")
	seq := fs.Uint64("seq", 0, "only events for this sequence")
	limit := fs.Int("limit", 0, "maximum rows")
	if !r.parse(fs, args) {
		return 2
	}
	query := url.Values{}
	if *seq > 0 {
		query.Set("sequence", strconv.FormatUint(*seq, 10))
	}
	if *limit > 0 {
		query.Set("limit", strconv.Itoa(*limit))
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/events", query, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.EventsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	for _, ev := range env.Events {
		seqText := "-"
		if ev.Sequence != nil {
			seqText = strconv.FormatUint(*ev.Sequence, 10)
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\t%s\n", ev.CreatedAt.Format(time.RFC3339), ev.Kind, seqText, ev.Detail)
	}
	return 0
}

func (r *Runner) runReleaseCheck(ctx context.Context, args []string) int {
	fs, jsonOut := newFlagSet("release-check")
	seq := fs.Uint64("seq", 0, "ledger sequence")
	if !r.parse(fs, args) {
		return 2
	}
	if *seq == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer release-check --seq <n>")
		return 2
	}
	ok, err := r.api.WithdrawalReleasable(ctx, *seq)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeJSON(map[string]any{"sequence": *seq, "releasable": ok})
	}
	if ok {
		_, _ = fmt.Fprintf(r.out, "sequence %d releasable\n", *seq)
		return 0
	}
	_, _ = fmt.Fprintf(r.out, "sequence %d not releasable\n", *seq)
	return 3
}

func (r *Runner) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if unmarshalErr := json.Unmarshal(payload, &er); unmarshalErr == nil && er.Error.Code != "" {
			return nil, fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func readJSONFile(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck
	dec := json.NewDecoder(io.LimitReader(f, maxSnapshotFileBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func joinSequences(seqs []uint64) string {
	if len(seqs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(seqs))
	for _, s := range seqs {
		parts = append(parts, strconv.FormatUint(s, 10))
	}
	return strings.Join(parts, ",")
}

func (r *Runner) writeRaw(body []byte) int {
	_, _ = r.out.Write(body)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		_, _ = fmt.Fprintln(r.out)
	}
	return 0
}

func (r *Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.out)
	if err := enc.Encode(v); err != nil {
		return r.handleErr(err)
	}
	return 0
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: puppeteer [--socket <path>] <status|instantiate|config|state|txs|delegations|submit|ack|resync|snapshot|ica|outbox|events|release-check> ...")
}
