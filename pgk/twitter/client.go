package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/saveblush/sismo-relay/models"
)

const (
	DefaultBaseURL = "https://api.twitter.com"
	userAgent      = "sismo-relay"
	maxBodyLog     = 200
)

// Service service interface
type Service interface {
	LookupUsers(ctx context.Context, token string, handles []string) (*models.UserLookup, error)
	UserTweets(ctx context.Context, token, userID string) ([]*models.Post, error)
}

type service struct {
	baseURL string
	http    *http.Client
}

// NewService new Twitter API v2 client
func NewService(baseURL string, timeout time.Duration) Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &service{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// LookupUsers resolve handles to account ids with one bulk request
func (s *service) LookupUsers(ctx context.Context, token string, handles []string) (*models.UserLookup, error) {
	params := url.Values{}
	params.Set("usernames", strings.Join(handles, ","))

	body, err := s.get(ctx, token, "/2/users/by", params)
	if err != nil {
		return nil, err
	}

	res := &models.UserLookup{}
	if err := json.Unmarshal(body, res); err != nil {
		return nil, fmt.Errorf("unmarshal users lookup: %w", err)
	}

	return res, nil
}

// UserTweets recent posts of one account, newest first
func (s *service) UserTweets(ctx context.Context, token, userID string) ([]*models.Post, error) {
	params := url.Values{}
	params.Set("tweet.fields", "text,created_at")

	body, err := s.get(ctx, token, "/2/users/"+url.PathEscape(userID)+"/tweets", params)
	if err != nil {
		return nil, err
	}

	var res struct {
		Data []*models.Post `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("unmarshal user tweets: %w", err)
	}

	return res.Data, nil
}

func (s *service) get(ctx context.Context, token, path string, params url.Values) ([]byte, error) {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w: %s", path, ErrUnauthorized, truncateBytes(body, maxBodyLog))
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Reset: parseRateLimitReset(resp.Header.Get("x-rate-limit-reset"))}
	}

	return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: truncateBytes(body, maxBodyLog)}
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
