package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultWebhookPath      = "/api/v1/common/payments/nets/webhook"
	DefaultHeartbeatTimeout = 150 * time.Second
)

type SSEConfig struct {
	BaseURL     string
	WebhookPath string
	APIKey      string
	ProjectID   string
	// HeartbeatTimeout is the longest silence tolerated before the stream counts as dropped.
	HeartbeatTimeout time.Duration
	HTTPClient       *http.Client
}

// SSESource opens server-sent-event streams on the gateway webhook endpoint.
type SSESource struct {
	cfg SSEConfig
}

func NewSSESource(cfg SSEConfig) *SSESource {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = DefaultWebhookPath
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.HTTPClient == nil {
		// no client timeout: the body is a long-lived stream
		cfg.HTTPClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SSESource{cfg: cfg}
}

func (s *SSESource) Open(ctx context.Context, ref string) (Stream, error) {
	u, err := url.Parse(s.cfg.BaseURL + s.cfg.WebhookPath)
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	q := u.Query()
	q.Set("txn_retrieval_ref", ref)
	u.RawQuery = q.Encode()

	sctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(sctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
	if s.cfg.ProjectID != "" {
		req.Header.Set("project-id", s.cfg.ProjectID)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("webhook: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("webhook status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	st := &sseStream{
		body:      resp.Body,
		cancel:    cancel,
		heartbeat: s.cfg.HeartbeatTimeout,
		frames:    make(chan frame),
		errc:      make(chan error, 1),
		stop:      make(chan struct{}),
	}
	go st.read()
	return st, nil
}

// frame is one dispatched SSE event; comment lines arrive as heartbeat frames.
type frame struct {
	event     string
	data      string
	heartbeat bool
}

type sseStream struct {
	body      io.ReadCloser
	cancel    context.CancelFunc
	heartbeat time.Duration

	frames chan frame
	errc   chan error
	stop   chan struct{}
	once   sync.Once
}

func (s *sseStream) read() {
	sc := bufio.NewScanner(s.body)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var event string
	var data []string
	send := func(f frame) bool {
		select {
		case s.frames <- f:
			return true
		case <-s.stop:
			return false
		}
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				name := event
				if name == "" {
					name = "message"
				}
				if !send(frame{event: name, data: strings.Join(data, "\n")}) {
					return
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			if !send(frame{heartbeat: true}) {
				return
			}
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
			case "data":
				data = append(data, value)
			}
		}
	}

	err := sc.Err()
	if err == nil {
		err = ErrStreamClosed
	}
	s.errc <- err
}

func (s *sseStream) Recv(ctx context.Context) (Message, error) {
	timer := time.NewTimer(s.heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case err := <-s.errc:
			return Message{}, err
		case <-timer.C:
			return Message{}, ErrHeartbeatTimeout
		case f := <-s.frames:
			timer.Reset(s.heartbeat)
			if f.heartbeat || f.event != "message" {
				continue
			}
			return Decode([]byte(f.data))
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		s.cancel()
		err = s.body.Close()
	})
	return err
}
