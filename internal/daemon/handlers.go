package daemon

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/g960059/puppeteer/internal/api"
	"github.com/g960059/puppeteer/internal/dispatch"
	"github.com/g960059/puppeteer/internal/model"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   s.now(),
		Status:        "ok",
	}
	if s.gateway != nil {
		_, err := s.gateway.Config(r.Context())
		resp.Initialized = err == nil
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) instantiateHandler(w http.ResponseWriter, r *http.Request) {
	var req model.Config
	if !s.decodeBody(w, r, &req) {
		return
	}
	cfg, err := s.engine.Instantiate(r.Context(), req)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ConfigEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Config: cfg})
}

func (s *Server) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.gateway.Config(r.Context())
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ConfigEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Config: cfg})
}

func (s *Server) updateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req api.ConfigUpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	cfg, err := s.engine.UpdateConfig(r.Context(), req.Sender, req.Patch)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ConfigEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Config: cfg})
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.gateway.State(r.Context())
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StateEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), State: st})
}

func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	status := model.TransferStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	txs, err := s.gateway.InterchainTransactions(r.Context(), status)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TransactionsEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Transactions: txs})
}

func (s *Server) transactionHandler(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil || seq == 0 {
		s.writeError(w, http.StatusBadRequest, model.CodeRefInvalid, "sequence must be a positive integer")
		return
	}
	t, err := s.gateway.Transaction(r.Context(), seq)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TransactionEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Transaction: t})
}

func (s *Server) delegationsHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.gateway.Delegations(r.Context())
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DelegationsEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Delegations: resp})
}

func (s *Server) registerICAHandler(w http.ResponseWriter, r *http.Request) {
	var req api.ICARegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	ica, err := s.engine.RegisterICA(r.Context(), req.Sender)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ICAEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), ICA: ica})
}

func (s *Server) channelOpenHandler(w http.ResponseWriter, r *http.Request) {
	var req api.ChannelOpenRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	ica, err := s.engine.OnChannelOpen(r.Context(), req.ChannelID, req.Address)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ICAEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), ICA: ica})
}

func (s *Server) channelCloseHandler(w http.ResponseWriter, r *http.Request) {
	var req api.ChannelCloseRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	st, err := s.engine.OnChannelClose(r.Context(), req.ChannelID)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StateEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), State: st})
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	t, err := s.engine.Submit(r.Context(), req.Sender, model.Instruction{
		Kind:   model.InstructionKind(req.Kind),
		Target: strings.TrimSpace(req.Target),
		Amount: req.Amount,
		Denom:  strings.TrimSpace(req.Denom),
	})
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.TransactionEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Transaction: t})
}

func (s *Server) ackHandler(w http.ResponseWriter, r *http.Request) {
	var req model.Ack
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := s.engine.OnAck(r.Context(), req)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AckEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Result: res})
}

func (s *Server) resyncHandler(w http.ResponseWriter, r *http.Request) {
	var req api.ResyncRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	st, err := s.engine.Resync(r.Context(), req.Sender, req.Snapshot)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StateEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), State: st})
}

func (s *Server) remoteSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	var req model.Snapshot
	if !s.decodeBody(w, r, &req) {
		return
	}
	st, applied, err := s.engine.ApplyRemoteSnapshot(r.Context(), req)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SnapshotEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Applied: applied, State: st})
}

func (s *Server) outboxHandler(w http.ResponseWriter, r *http.Request) {
	after, limit, err := parsePage(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, model.CodeRefInvalid, err.Error())
		return
	}
	packets, err := s.gateway.Outbox(r.Context(), after, limit)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	resp := api.OutboxEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   s.now(),
		Items:         make([]api.OutboxItem, 0, len(packets)),
		NextAfter:     after,
	}
	for _, pkt := range packets {
		types, err := dispatch.MessageTypes(pkt.Data)
		if err != nil {
			s.writeOpError(w, r, err)
			return
		}
		resp.Items = append(resp.Items, api.OutboxItem{
			PacketID:     pkt.PacketID,
			Sequence:     pkt.Sequence,
			PortID:       pkt.PortID,
			ChannelID:    pkt.ChannelID,
			TypeURL:      pkt.TypeURL,
			MessageTypes: types,
			Data:         pkt.Data,
			Memo:         pkt.Memo,
			Fees:         pkt.Fees,
			TimeoutAt:    pkt.TimeoutAt,
			CreatedAt:    pkt.CreatedAt,
		})
		resp.NextAfter = pkt.Sequence
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	var seq *uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("sequence")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, model.CodeRefInvalid, "sequence must be an integer")
			return
		}
		seq = &v
	}
	_, limit, err := parsePage(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, model.CodeRefInvalid, err.Error())
		return
	}
	events, err := s.gateway.Events(r.Context(), seq, limit)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventsEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: s.now(), Events: events})
}

func parsePage(r *http.Request) (uint64, int, error) {
	q := r.URL.Query()
	var (
		after uint64
		limit int
		err   error
	)
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		if after, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return 0, 0, errors.New("after must be an integer")
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 || limit > 1000 {
			return 0, 0, errors.New("limit must be between 1 and 1000")
		}
	}
	return after, limit, nil
}
