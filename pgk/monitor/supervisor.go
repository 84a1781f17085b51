package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/core/utils/retry"
	"github.com/saveblush/sismo-relay/models"
	"github.com/saveblush/sismo-relay/pgk/metrics"
	"github.com/saveblush/sismo-relay/pgk/query"
	"github.com/saveblush/sismo-relay/pgk/tokens"
	"github.com/saveblush/sismo-relay/pgk/twitter"
)

const (
	DefaultPollInterval  = time.Second
	DefaultRecencyWindow = 15 * time.Second
	DefaultRetryDelay    = time.Second
)

var (
	ErrAlreadyStarted = errors.New("monitor: already started")
	ErrNoAccounts     = errors.New("monitor: no account could be resolved")
)

// Service service interface
type Service interface {
	Start(ctx context.Context, handles []string) error
	Stop()
	Accounts() []models.MonitoredAccount
	Workers() int
}

// Config poll cadence settings
type Config struct {
	PollInterval  time.Duration
	RecencyWindow time.Duration
	RetryDelay    time.Duration
}

type service struct {
	clock   clockwork.Clock
	tokens  tokens.Service
	twitter twitter.Service
	query   query.Node
	onMatch MatchFunc
	config  Config

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	accounts []models.MonitoredAccount

	wg      sync.WaitGroup
	running atomic.Int32
}

// NewService new monitor supervisor; workers share the rotator, query and onMatch
func NewService(clock clockwork.Clock, tks tokens.Service, tw twitter.Service, q query.Node, onMatch MatchFunc, cf Config) Service {
	if cf.PollInterval <= 0 {
		cf.PollInterval = DefaultPollInterval
	}
	if cf.RecencyWindow <= 0 {
		cf.RecencyWindow = DefaultRecencyWindow
	}
	if cf.RetryDelay <= 0 {
		cf.RetryDelay = DefaultRetryDelay
	}

	return &service{
		clock:   clock,
		tokens:  tks,
		twitter: tw,
		query:   q,
		onMatch: onMatch,
		config:  cf,
	}
}

// Start resolve handles once, then spawn one supervised worker per resolved account.
// Returns without waiting for the workers. Fails, starting nothing, when no handle resolves.
func (s *service) Start(ctx context.Context, handles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	accounts, err := s.resolve(ctx, handles)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.accounts = accounts

	for _, acc := range accounts {
		logger.Log.Infof("monitoring @%s (%s)", acc.Handle, acc.ID)
		s.wg.Add(1)
		go s.supervise(ctx, acc)
	}

	return nil
}

func (s *service) resolve(ctx context.Context, handles []string) ([]models.MonitoredAccount, error) {
	token, err := s.tokens.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.twitter.LookupUsers(ctx, token, handles)
	if err != nil {
		if errors.Is(err, twitter.ErrUnauthorized) {
			logger.Log.Errorf("unauthorized, please check your API tokens: %s", err)
		}
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}

	if len(res.Users) == 0 {
		logger.Log.Errorf("failed to fetch user ids: %s", describeLookupErrors(res.Errors))
		return nil, fmt.Errorf("%w: %s", ErrNoAccounts, describeLookupErrors(res.Errors))
	}
	if len(res.Errors) > 0 {
		logger.Log.Errorf("failed to fetch user id for one or more users: %s", describeLookupErrors(res.Errors))
	}

	accounts := make([]models.MonitoredAccount, 0, len(res.Users))
	for _, u := range res.Users {
		accounts = append(accounts, models.MonitoredAccount{ID: u.ID, Handle: u.Username})
	}

	return accounts, nil
}

// supervise run the account's worker forever, restarting a fresh one after each transient failure
func (s *service) supervise(ctx context.Context, acc models.MonitoredAccount) {
	defer s.wg.Done()

	s.running.Add(1)
	metrics.ActiveWorkers.Inc()
	defer func() {
		s.running.Add(-1)
		metrics.ActiveWorkers.Dec()
	}()

	policy := retry.Policy{
		Delay: s.config.RetryDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			metrics.WorkerRestarts.Inc()
			logger.Log.Warnf("worker @%s failed (attempt %d), restarting in %s: %s", acc.Handle, attempt, delay, err)
		},
	}

	err := retry.Forever(ctx, s.clock, policy, classify, func(ctx context.Context) error {
		return s.newWorker(acc).Run(ctx)
	})

	var permErr *retry.PermanentError
	if errors.As(err, &permErr) {
		logger.Log.Errorf("worker @%s stopped, operator action needed: %s", acc.Handle, permErr.Err)
		return
	}
	logger.Log.Infof("worker @%s stopped: %s", acc.Handle, err)
}

func (s *service) newWorker(acc models.MonitoredAccount) *worker {
	return &worker{
		account:  &models.MonitoredAccount{ID: acc.ID, Handle: acc.Handle},
		clock:    s.clock,
		tokens:   s.tokens,
		twitter:  s.twitter,
		query:    s.query,
		onMatch:  s.onMatch,
		interval: s.config.PollInterval,
		recency:  s.config.RecencyWindow,
	}
}

// Stop cancel every worker and wait for them to return
func (s *service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Accounts resolved accounts
func (s *service) Accounts() []models.MonitoredAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]models.MonitoredAccount, len(s.accounts))
	copy(res, s.accounts)

	return res
}

// Workers number of workers currently running
func (s *service) Workers() int {
	return int(s.running.Load())
}

func classify(err error) retry.Action {
	if errors.Is(err, twitter.ErrUnauthorized) {
		return retry.Stop
	}
	return retry.Retry
}

func describeLookupErrors(errs []*models.LookupError) string {
	if len(errs) == 0 {
		return "no users returned"
	}

	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Value, e.Detail))
	}

	return strings.Join(parts, "; ")
}
