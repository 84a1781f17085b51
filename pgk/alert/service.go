package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/models"
	"github.com/saveblush/sismo-relay/pgk/debounce"
	"github.com/saveblush/sismo-relay/pgk/metrics"
)

// dateLayout local time with microseconds, the format receivers already parse
const dateLayout = "2006-01-02T15:04:05.000000"

const (
	defaultWorkers = 4
	defaultTimeout = 10 * time.Second
)

// Service service interface
type Service interface {
	Trigger(ctx context.Context, signal models.Signal) bool
	Dispatch(ctx context.Context, signal models.Signal) error
	SetWebhooks(urls []string)
	Webhooks() []string
	SetTestMode(on bool)
	TestMode() bool
	Wait()
}

// Config alert fan-out settings
type Config struct {
	Webhooks []string
	TestMode bool
	Workers  int
	Timeout  time.Duration
}

type service struct {
	clock     clockwork.Clock
	debouncer debounce.Service
	http      *http.Client
	workers   int

	mu       sync.RWMutex
	webhooks []string
	testMode bool

	inflight sync.WaitGroup
}

// NewService new alert service
func NewService(clock clockwork.Clock, debouncer debounce.Service, cf Config) Service {
	if cf.Workers <= 0 {
		cf.Workers = defaultWorkers
	}
	if cf.Timeout <= 0 {
		cf.Timeout = defaultTimeout
	}

	s := &service{
		clock:     clock,
		debouncer: debouncer,
		http:      &http.Client{Timeout: cf.Timeout},
		workers:   cf.Workers,
		testMode:  cf.TestMode,
	}
	s.SetWebhooks(cf.Webhooks)

	return s
}

// Trigger fire the alert unless one was fired within the debounce window.
// The fan-out runs in the background; Wait blocks until it is done.
func (s *service) Trigger(ctx context.Context, signal models.Signal) bool {
	logger.Log.Infof("received EQW signal, from twitter: %t - is test: %t", signal.Twitter, signal.Test)

	if !s.debouncer.TryTrigger(s.clock.Now()) {
		logger.Log.Info("signal ignored: within debounce window of previous signal")
		metrics.AlertsTotal.WithLabelValues(source(signal), "suppressed").Inc()
		return false
	}
	metrics.AlertsTotal.WithLabelValues(source(signal), "accepted").Inc()

	// the caller's request may end before delivery does
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.Dispatch(ctx, signal); err != nil {
			logger.Log.Errorf("dispatch alert error: %s", err)
		}
	}()

	return true
}

// Dispatch post the alert payload once to every webhook, at most Workers at a time
func (s *service) Dispatch(ctx context.Context, signal models.Signal) error {
	payload := &models.AlertPayload{
		Code:    models.SignalEarthquake,
		Date:    s.clock.Now().Format(dateLayout),
		Test:    signal.Test,
		Twitter: signal.Twitter,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	alertID := uuid.NewString()
	webhooks := s.Webhooks()
	if len(webhooks) == 0 {
		logger.Log.Warnf("[%s] no webhooks configured, alert dropped", alertID)
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, webhook := range webhooks {
		g.Go(func() error {
			return s.send(ctx, alertID, webhook, body)
		})
	}

	return g.Wait()
}

func (s *service) send(ctx context.Context, alertID, webhook string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("webhook %s: %w", webhook, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-ID", alertID)

	resp, err := s.http.Do(req)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
		logger.Log.Errorf("[%s] notification to '%s' failed: %s", alertID, webhook, err)
		return fmt.Errorf("webhook %s: %w", webhook, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	metrics.WebhookRequestsTotal.WithLabelValues(fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()
	logger.Log.Infof("[%s] notification sent to '%s' with status code: %d", alertID, webhook, resp.StatusCode)

	return nil
}

// SetWebhooks replace the webhook list
func (s *service) SetWebhooks(urls []string) {
	list := make([]string, len(urls))
	copy(list, urls)

	s.mu.Lock()
	s.webhooks = list
	s.mu.Unlock()
}

// Webhooks current webhook list
func (s *service) Webhooks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.webhooks
}

// SetTestMode toggle relaying of test signals
func (s *service) SetTestMode(on bool) {
	s.mu.Lock()
	s.testMode = on
	s.mu.Unlock()
}

// TestMode whether test signals are relayed
func (s *service) TestMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.testMode
}

// Wait block until background deliveries finish
func (s *service) Wait() {
	s.inflight.Wait()
}

func source(signal models.Signal) string {
	switch {
	case signal.Test:
		return "test"
	case signal.Twitter:
		return "twitter"
	}
	return "receiver"
}
