package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saveblush/sismo-relay/core/config"
	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/models"
	"github.com/saveblush/sismo-relay/pgk/alert"
	"github.com/saveblush/sismo-relay/pgk/cron"
	"github.com/saveblush/sismo-relay/pgk/debounce"
	"github.com/saveblush/sismo-relay/pgk/monitor"
	"github.com/saveblush/sismo-relay/pgk/query"
	"github.com/saveblush/sismo-relay/pgk/tokens"
	"github.com/saveblush/sismo-relay/pgk/twitter"
	"github.com/saveblush/sismo-relay/server"
)

func main() {
	flag.Parse()

	// Init logger
	logger.InitLogger(os.Getenv("APP_LOG_LEVEL"))

	// Init configuration
	err := config.InitConfig()
	if err != nil {
		logger.Log.Panicf("init configuration error: %s", err)
	}
	logger.InitLogger(config.CF.App.LogLevel)

	// Alert query
	q, err := query.Parse([]byte(config.CF.Twitter.TextQuery))
	if err != nil {
		logger.Log.Panicf("invalid TWITTER_TEXT_QUERY: %s", err)
	}

	clock := clockwork.NewRealClock()

	// Token rotator
	tks, err := tokens.NewService(clock, config.CF.Twitter.APIToken, config.CF.Twitter.TokenRateLimit, config.CF.Twitter.RateWindow)
	if err != nil {
		logger.Log.Panicf("init token rotator error: %s", err)
	}

	// Alert
	alerts := alert.NewService(clock, debounce.NewService(config.CF.Alert.DebounceWindow), alert.Config{
		Webhooks: config.CF.Alert.Webhooks,
		TestMode: config.CF.Alert.TestMode,
		Workers:  config.CF.Alert.Workers,
		Timeout:  config.CF.Alert.RequestTimeout,
	})
	config.OnChange(func(cf *config.Configs) {
		alerts.SetWebhooks(cf.Alert.Webhooks)
		alerts.SetTestMode(cf.Alert.TestMode)
		logger.Log.Infof("alert config reloaded: %d webhooks, test mode: %t", len(cf.Alert.Webhooks), cf.Alert.TestMode)
	})

	// Twitter monitor
	tw := twitter.NewService(config.CF.Twitter.BaseURL, config.CF.Twitter.RequestTimeout)
	onMatch := func(ctx context.Context) {
		alerts.Trigger(ctx, models.Signal{Twitter: true})
	}
	mon := monitor.NewService(clock, tks, tw, q, onMatch, monitor.Config{
		PollInterval:  config.CF.Twitter.PollInterval,
		RecencyWindow: config.CF.Twitter.RecencyWindow,
		RetryDelay:    config.CF.Twitter.RetryDelay,
	})
	go func() {
		err := mon.Start(context.Background(), config.CF.Twitter.MonitorUsers)
		if err != nil {
			logger.Log.Errorf("twitter monitor not started: %s", err)
		}
	}()

	// Cron
	cron := cron.NewService(tks, mon)
	cron.Start()

	// Init receiver
	sv := server.NewServer(alerts, config.CF)
	handler := sv.Serve()

	// Start app
	addr := flag.String("addr", fmt.Sprintf(":%d", config.CF.App.Port), "http service address")
	server := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.SetKeepAlivesEnabled(true)

	go func() {
		err = server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Panicf("App start error: %s", err)
		}
	}()
	logger.Log.Infof("App start on: %s", *addr)

	// Shutdown app
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownRelease()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		logger.Log.Errorf("App shutdown error: %s", err)
	}

	// Close monitor
	mon.Stop()
	logger.Log.Info("Monitor closed")

	// Close cron
	cron.Stop()
	logger.Log.Info("Cron closed")

	// Wait in-flight alerts
	alerts.Wait()
	logger.Log.Info("Gracefully shutting down")
}
