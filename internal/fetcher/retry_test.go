package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/bookharvest/internal/types"
)

// scriptedFetcher returns errs in order, then a 200 response.
type scriptedFetcher struct {
	errs  []error
	calls int
}

func (s *scriptedFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &types.Response{StatusCode: 200, Body: []byte("<html></html>"), Request: req}, nil
}

func (s *scriptedFetcher) Close() error { return nil }
func (s *scriptedFetcher) Type() string { return "scripted" }

func timeoutErr(url string) error {
	return &types.FetchError{URL: url, Err: context.DeadlineExceeded, Retryable: true, Timeout: true}
}

func okHandler(*types.Response) error { return nil }

func TestRetrierSucceedsAfterTimeouts(t *testing.T) {
	req := mustRequest(t, "https://example.com/book/page/2/")
	f := &scriptedFetcher{errs: []error{timeoutErr(req.URLString()), timeoutErr(req.URLString())}}
	r := NewRetrier(f, 5, 0, testLogger)

	attempts, err := r.Do(context.Background(), req, ListingPolicy, okHandler)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, f.calls)
}

func TestRetrierExhausted(t *testing.T) {
	req := mustRequest(t, "https://example.com/book/page/2/")
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = timeoutErr(req.URLString())
	}
	f := &scriptedFetcher{errs: errs}
	r := NewRetrier(f, 5, 0, testLogger)

	attempts, err := r.Do(context.Background(), req, ListingPolicy, okHandler)
	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 5, f.calls)
	assert.ErrorIs(t, err, types.ErrMaxRetries)
	assert.True(t, types.IsTimeout(err), "last error should stay reachable")
}

func TestListingPolicySkipsNonTimeout(t *testing.T) {
	req := mustRequest(t, "https://example.com/book/page/3/")
	serverErr := &types.FetchError{URL: req.URLString(), StatusCode: 503, Err: errors.New("unavailable"), Retryable: true}
	f := &scriptedFetcher{errs: []error{serverErr}}
	r := NewRetrier(f, 5, 0, testLogger)

	attempts, err := r.Do(context.Background(), req, ListingPolicy, okHandler)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, serverErr)
	assert.NotErrorIs(t, err, types.ErrMaxRetries)
}

func TestDetailPolicyRetriesStructureMissing(t *testing.T) {
	req := mustRequest(t, "https://example.com/book/x/")
	f := &scriptedFetcher{}
	r := NewRetrier(f, 5, 0, testLogger)

	calls := 0
	handle := func(*types.Response) error {
		calls++
		if calls < 3 {
			return &types.ParseError{URL: req.URLString(), Selector: "div#sinopsis", Err: types.ErrStructureMissing}
		}
		return nil
	}

	attempts, err := r.Do(context.Background(), req, DetailPolicy, handle)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicies(t *testing.T) {
	fetchErr := &types.FetchError{URL: "u", Err: errors.New("connection reset")}
	structErr := fmt.Errorf("wrapped: %w", types.ErrStructureMissing)

	tests := []struct {
		name    string
		policy  RetryPolicy
		err     error
		wantTry bool
	}{
		{"listing timeout", ListingPolicy, timeoutErr("u"), true},
		{"listing network", ListingPolicy, fetchErr, false},
		{"listing structure", ListingPolicy, structErr, false},
		{"detail timeout", DetailPolicy, timeoutErr("u"), true},
		{"detail network", DetailPolicy, fetchErr, true},
		{"detail structure", DetailPolicy, structErr, true},
		{"detail other", DetailPolicy, errors.New("bad utf8"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTry, tt.policy(tt.err))
		})
	}
}

func TestRetrierStopsOnCancel(t *testing.T) {
	req := mustRequest(t, "https://example.com/book/page/2/")
	f := &scriptedFetcher{errs: []error{timeoutErr(req.URLString()), timeoutErr(req.URLString())}}
	r := NewRetrier(f, 5, time.Hour, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts, err := r.Do(ctx, req, ListingPolicy, okHandler)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
