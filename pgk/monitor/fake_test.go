package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saveblush/sismo-relay/models"
)

type pollCall struct {
	userID string
	token  string
	at     time.Time
}

// fakeTwitter scripted Twitter API. Each poll pops the next response for
// the account, the last response repeats.
type fakeTwitter struct {
	clock   *clockwork.FakeClock
	latency time.Duration

	mu        sync.Mutex
	lookup    *models.UserLookup
	lookupErr error
	responses map[string][]fakeResponse
	calls     []pollCall
	polled    chan pollCall
}

type fakeResponse struct {
	posts func(now time.Time) []*models.Post
	err   error
}

func newFakeTwitter(clock *clockwork.FakeClock) *fakeTwitter {
	return &fakeTwitter{
		clock:     clock,
		responses: map[string][]fakeResponse{},
		polled:    make(chan pollCall, 100),
	}
}

func (f *fakeTwitter) script(userID string, responses ...fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[userID] = responses
}

func (f *fakeTwitter) LookupUsers(ctx context.Context, token string, handles []string) (*models.UserLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup, f.lookupErr
}

func (f *fakeTwitter) UserTweets(ctx context.Context, token, userID string) ([]*models.Post, error) {
	call := pollCall{userID: userID, token: token, at: f.clock.Now()}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var resp fakeResponse
	if queue := f.responses[userID]; len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[userID] = queue[1:]
		}
	}
	f.mu.Unlock()

	if f.latency > 0 {
		f.clock.Advance(f.latency)
	}
	select {
	case f.polled <- call:
	default:
	}

	if resp.err != nil {
		return nil, resp.err
	}
	if resp.posts == nil {
		return nil, nil
	}
	return resp.posts(f.clock.Now()), nil
}

// postsAgo posts created the given ages before the poll
func postsAgo(text string, ages ...time.Duration) fakeResponse {
	return fakeResponse{posts: func(now time.Time) []*models.Post {
		var res []*models.Post
		for _, age := range ages {
			res = append(res, &models.Post{ID: "p", Text: text, CreatedAt: now.Add(-age)})
		}
		return res
	}}
}

func errResponse(err error) fakeResponse {
	return fakeResponse{err: err}
}
