package cron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/pgk/metrics"
	"github.com/saveblush/sismo-relay/pgk/monitor"
	"github.com/saveblush/sismo-relay/pgk/tokens"
)

// Service service interface
type Service interface {
	Start()
	Stop()
}

type service struct {
	cron    *cron.Cron
	tokens  tokens.Service
	monitor monitor.Service
}

// NewService new telemetry cron
func NewService(tks tokens.Service, mon monitor.Service) Service {
	return &service{
		cron:    cron.New(),
		tokens:  tks,
		monitor: mon,
	}
}

func (s *service) Start() {
	logger.Log.Info("Cron init...")
	s.schedule()
	s.cron.Start()
}

func (s *service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *service) schedule() {
	// รันทุก 1 นาที
	s.cron.AddFunc("* * * * *", s.report)
}

// report log budget usage and worker count, refresh gauges
func (s *service) report() {
	st := s.tokens.Stats()
	workers := s.monitor.Workers()

	metrics.TokenCallsInWindow.Set(float64(st.Calls))
	metrics.TokenBudgetRemaining.Set(float64(max(0, st.Limit-st.Calls)))
	metrics.ActiveWorkers.Set(float64(workers))

	if st.Stalled {
		logger.Log.Warnf("degraded: token budget spent (%d/%d), all workers waiting until %s",
			st.Calls, st.Limit, st.WindowEnd.Format(time.RFC3339))
		return
	}

	logger.Log.Infof("tokens: %d credentials, %d/%d calls this window (resets %s), workers: %d",
		st.Size, st.Calls, st.Limit, st.WindowEnd.Format(time.RFC3339), workers)
}
