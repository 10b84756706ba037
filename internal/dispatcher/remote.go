package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var errRemoteUnavailable = errors.New("remote unavailable")

// remote forwards requests to the real backend. After a failure it is
// skipped until the recovery interval has passed.
type remote struct {
	baseURL          string
	client           *http.Client
	timeout          time.Duration
	recoveryInterval time.Duration
	isDown           atomic.Bool
	lastFailure      atomic.Int64
}

func newRemote(baseURL string, timeout, recoveryInterval time.Duration) *remote {
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	if recoveryInterval <= 0 {
		recoveryInterval = time.Minute
	}
	return &remote{
		baseURL:          strings.TrimRight(baseURL, "/"),
		client:           &http.Client{},
		timeout:          timeout,
		recoveryInterval: recoveryInterval,
	}
}

func (r *remote) available() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastFailure.Load())
	return time.Since(last) > r.recoveryInterval
}

func (r *remote) markDown() {
	r.isDown.Store(true)
	r.lastFailure.Store(time.Now().UnixNano())
}

type remoteResult struct {
	resp *Response
	err  error
}

// do runs one attempt under a hard deadline. When the deadline fires first
// the attempt is abandoned and whatever it produces later is dropped.
func (r *remote) do(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan remoteResult, 1)
	go func() {
		resp, err := r.roundTrip(attemptCtx, req)
		done <- remoteResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.failed(ctx)
			return nil, res.err
		}
		r.isDown.Store(false)
		return res.resp, nil
	case <-attemptCtx.Done():
		r.failed(ctx)
		return nil, fmt.Errorf("%w: %v", errRemoteUnavailable, attemptCtx.Err())
	}
}

// failed marks the remote down unless the caller gave up first. A cancelled
// caller says nothing about the remote's health.
func (r *remote) failed(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.markDown()
}

func (r *remote) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	target := r.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.UserID != "" {
		httpReq.Header.Set(UserIDHeader, req.UserID)
	}

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRemoteUnavailable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errRemoteUnavailable, err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", errRemoteUnavailable, httpResp.StatusCode)
	}
	return &Response{Status: httpResp.StatusCode, Body: data, Source: SourceRemote}, nil
}
