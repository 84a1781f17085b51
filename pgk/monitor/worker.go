package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saveblush/sismo-relay/core/utils"
	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/models"
	"github.com/saveblush/sismo-relay/pgk/metrics"
	"github.com/saveblush/sismo-relay/pgk/query"
	"github.com/saveblush/sismo-relay/pgk/tokens"
	"github.com/saveblush/sismo-relay/pgk/twitter"
)

// MatchFunc alert path invoked when a poll finds at least one matching post
type MatchFunc func(ctx context.Context)

// worker polls one account at a fixed cadence
type worker struct {
	account  *models.MonitoredAccount
	clock    clockwork.Clock
	tokens   tokens.Service
	twitter  twitter.Service
	query    query.Node
	onMatch  MatchFunc
	interval time.Duration
	recency  time.Duration
}

// Run poll until ctx is done or a fetch fails.
// A 429 is not a failure: the iteration is skipped and the cadence kept.
func (w *worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		begin := w.clock.Now()
		w.account.LastPollBegin = begin

		if err := w.poll(ctx); err != nil {
			return err
		}
		metrics.PollDuration.Observe(w.clock.Now().Sub(begin).Seconds())

		if err := w.waitInterval(ctx, begin); err != nil {
			return err
		}
	}
}

func (w *worker) poll(ctx context.Context) error {
	token, err := w.tokens.Acquire(ctx)
	if err != nil {
		return err
	}

	posts, err := w.twitter.UserTweets(ctx, token, w.account.ID)
	if err != nil {
		var rlErr *twitter.RateLimitError
		switch {
		case errors.As(err, &rlErr):
			metrics.PollsTotal.WithLabelValues(metrics.PollRateLimited).Inc()
			logger.Log.Warnf("too many requests on token %s polling @%s, upstream resets at %s",
				utils.MaskToken(token), w.account.Handle, rlErr.Reset.Format(time.RFC3339))
			return nil
		case errors.Is(err, twitter.ErrUnauthorized):
			metrics.PollsTotal.WithLabelValues(metrics.PollUnauthorized).Inc()
			return fmt.Errorf("poll @%s with token %s: %w", w.account.Handle, utils.MaskToken(token), err)
		case ctx.Err() != nil:
			return ctx.Err()
		}

		metrics.PollsTotal.WithLabelValues(metrics.PollError).Inc()
		return fmt.Errorf("poll @%s: %w", w.account.Handle, err)
	}
	metrics.PollsTotal.WithLabelValues(metrics.PollOK).Inc()

	if matched := w.matching(posts); len(matched) > 0 {
		for _, p := range matched {
			logger.Log.Infof("alert post from @%s (%s): %q", w.account.Handle, p.ID, p.Text)
		}
		metrics.MatchesTotal.Add(float64(len(matched)))
		w.onMatch(ctx)
	}

	return nil
}

// matching fresh posts that satisfy the query; stale or backfilled posts are dropped
func (w *worker) matching(posts []*models.Post) []*models.Post {
	now := w.clock.Now()

	var res []*models.Post
	for _, p := range posts {
		if now.Sub(p.CreatedAt) >= w.recency {
			continue
		}
		if query.Matches(p.Text, w.query) {
			res = append(res, p)
		}
	}

	return res
}

// waitInterval sleep out the rest of the interval measured from begin
func (w *worker) waitInterval(ctx context.Context, begin time.Time) error {
	wait := w.interval - w.clock.Now().Sub(begin)
	if wait <= 0 {
		return ctx.Err()
	}

	select {
	case <-w.clock.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
