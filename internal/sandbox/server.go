// Package sandbox is a local stand-in for the payment gateway: it serves the
// create, query and webhook endpoints and plays scripted scenarios per amount.
package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/example/qr-payment-confirm/internal/gateway"
	"github.com/example/qr-payment-confirm/internal/notify"
	m "github.com/example/qr-payment-confirm/pkg/metrics"
)

const serviceName = "sandbox"

// Publisher mirrors push messages to another transport, e.g. Kafka.
type Publisher interface {
	Publish(ctx context.Context, ref string, msg notify.Message) error
}

type Config struct {
	// APIKey, when set, must match the api-key header of every gateway call.
	APIKey string
	// ScanAfter is the delay for amounts without a scenario.
	ScanAfter time.Duration
	// Heartbeat is the interval between SSE comment lines.
	Heartbeat   time.Duration
	RequestPath string
	QueryPath   string
	WebhookPath string
}

type pushEvent struct {
	msg  notify.Message
	drop bool
}

type txn struct {
	ref      string
	txnID    string
	amount   decimal.Decimal
	scenario Scenario
	paid     bool

	events  []pushEvent
	changed chan struct{}
	timer   *time.Timer
}

type Server struct {
	cfg       Config
	publisher Publisher
	logger    *slog.Logger
	router    *mux.Router

	mu        sync.Mutex
	txns      map[string]*txn
	scenarios map[string]Scenario
	closed    bool
}

func New(cfg Config, scenarios []Scenario, publisher Publisher, logger *slog.Logger) *Server {
	if cfg.ScanAfter <= 0 {
		cfg.ScanAfter = 3 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.RequestPath == "" {
		cfg.RequestPath = gateway.DefaultRequestPath
	}
	if cfg.QueryPath == "" {
		cfg.QueryPath = gateway.DefaultQueryPath
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = notify.DefaultWebhookPath
	}

	s := &Server{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.With(slog.String("component", serviceName)),
		txns:      make(map[string]*txn),
		scenarios: make(map[string]Scenario, len(scenarios)),
	}
	for _, sc := range scenarios {
		s.scenarios[sc.key()] = sc
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": serviceName,
			"ts":      time.Now().UTC(),
		})
	}).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireAPIKey)
	api.HandleFunc(s.cfg.RequestPath, s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc(s.cfg.QueryPath, s.handleQuery).Methods(http.MethodPost)
	api.HandleFunc(s.cfg.WebhookPath, s.handleWebhook).Methods(http.MethodGet)

	r.HandleFunc("/sandbox/transactions/{ref}/confirm", s.handleAdmin(s.Confirm)).Methods(http.MethodPost)
	r.HandleFunc("/sandbox/transactions/{ref}/expire", s.handleAdmin(s.Expire)).Methods(http.MethodPost)

	s.router = r
}

// Handler is the full HTTP surface, CORS enabled for browser clients.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.router)
}

// Close stops pending scripted events.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, t := range s.txns {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
}

// Confirm marks ref paid and pushes the scanned message.
func (s *Server) Confirm(ref string) error {
	return s.push(ref, pushEvent{msg: notify.Message{Message: notify.MessageScanned, ResponseCode: gateway.SuccessCode}}, true)
}

// Expire pushes the gateway's timeout message without paying.
func (s *Server) Expire(ref string) error {
	return s.push(ref, pushEvent{msg: notify.Message{Message: notify.MessageTimeout, ResponseCode: "09"}}, false)
}

// Drop closes every open push stream for ref.
func (s *Server) Drop(ref string) error {
	return s.push(ref, pushEvent{drop: true}, false)
}

func (s *Server) push(ref string, ev pushEvent, paid bool) error {
	s.mu.Lock()
	t, ok := s.txns[ref]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("sandbox: unknown retrieval reference %q", ref)
	}
	if paid {
		t.paid = true
	}
	t.events = append(t.events, ev)
	close(t.changed)
	t.changed = make(chan struct{})
	s.mu.Unlock()

	if s.publisher != nil && !ev.drop {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, ref, ev.msg); err != nil {
			s.logger.Warn("publish notification", slog.String("ref", ref), slog.Any("err", err))
		}
	}
	return nil
}

func (s *Server) scenarioFor(amount decimal.Decimal) Scenario {
	if sc, ok := s.scenarios[amount.StringFixed(2)]; ok {
		return sc
	}
	return Scenario{Amount: amount, Outcome: OutcomeScan, After: s.cfg.ScanAfter}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in gateway.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(in.AmtInDollars)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusOK, gateway.Wrap(declined("12", "Invalid amount")))
		return
	}

	s.mu.Lock()
	sc := s.scenarioFor(amount)
	s.mu.Unlock()

	if sc.Outcome == OutcomeDecline {
		code := sc.ResponseCode
		if code == "" {
			code = "05"
		}
		s.logger.Info("declining create", slog.String("txn_id", in.TxnID), slog.String("amount", amount.StringFixed(2)))
		writeJSON(w, http.StatusOK, gateway.Wrap(declined(code, "Transaction declined by sandbox")))
		return
	}

	ref := uuid.NewString()
	png, err := qrcode.Encode(fmt.Sprintf("SANDBOX|%s|%s", ref, amount.StringFixed(2)), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "render qr: "+err.Error(), http.StatusInternalServerError)
		return
	}

	t := &txn{ref: ref, txnID: in.TxnID, amount: amount, scenario: sc, changed: make(chan struct{})}
	s.mu.Lock()
	s.txns[ref] = t
	if !s.closed {
		s.schedule(t)
	}
	s.mu.Unlock()

	s.logger.Info("issued payment code",
		slog.String("txn_id", in.TxnID),
		slog.String("ref", ref),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("outcome", string(sc.Outcome)))

	zero := 0
	writeJSON(w, http.StatusOK, gateway.Wrap(gateway.CreateResponse{
		ResponseCode:    gateway.SuccessCode,
		TxnStatus:       1,
		QRCode:          base64.StdEncoding.EncodeToString(png),
		TxnRetrievalRef: ref,
		NetworkStatus:   &zero,
	}))
}

// schedule arms the scripted event for t; s.mu must be held.
func (s *Server) schedule(t *txn) {
	var fire func(string) error
	switch t.scenario.Outcome {
	case OutcomeScan:
		fire = s.Confirm
	case OutcomeTimeout:
		fire = s.Expire
	case OutcomeDrop:
		fire = s.Drop
	default:
		return
	}
	ref := t.ref
	t.timer = time.AfterFunc(t.scenario.After, func() { _ = fire(ref) })
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var in gateway.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	t, ok := s.txns[in.TxnRetrievalRef]
	paid := ok && (t.paid || t.scenario.PaidOnQuery)
	s.mu.Unlock()

	out := gateway.QueryResponse{ResponseCode: "09", TxnStatus: 0}
	switch {
	case !ok:
		out.ResponseCode = "68"
	case paid:
		out = gateway.QueryResponse{ResponseCode: gateway.SuccessCode, TxnStatus: 1}
	}
	writeJSON(w, http.StatusOK, gateway.Wrap(out))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("txn_retrieval_ref")
	s.mu.Lock()
	t, ok := s.txns[ref]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown txn_retrieval_ref", http.StatusNotFound)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	next := 0
	for {
		s.mu.Lock()
		pending := t.events[next:]
		next = len(t.events)
		changed := t.changed
		s.mu.Unlock()

		for _, ev := range pending {
			if ev.drop {
				return
			}
			data, _ := json.Marshal(ev.msg)
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		}
		if len(pending) > 0 {
			_ = rc.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-changed:
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func (s *Server) handleAdmin(action func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := mux.Vars(r)["ref"]
		if err := action(ref); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ref": ref})
	}
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("api-key") != s.cfg.APIKey {
			http.Error(w, "invalid api-key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func declined(code, instruction string) gateway.CreateResponse {
	zero := 0
	return gateway.CreateResponse{ResponseCode: code, TxnStatus: 0, NetworkStatus: &zero, Instruction: instruction}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

/*************** Metrics middleware ***************/
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		statusLabel := "FAILED"
		if rec.status >= 200 && rec.status < 400 {
			statusLabel = "SUCCESS"
		}
		m.IncRequest(serviceName, statusLabel, r.Method)
		m.ObserveDuration(serviceName, statusLabel, time.Since(start).Seconds())
	})
}
