// Package shopapi はリモートのショップREST APIを呼ぶクライアント。
// ユーザーのbearerトークンはcontextから取り出して転送する。
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"storefront/internal/repository"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// StatusCode はerrがリモートAPIのstatus応答ならそのコードを返す
func StatusCode(err error) (int, bool) {
	if re, ok := repository.AsRemoteError(err); ok {
		return re.StatusCode, true
	}
	return 0, false
}

type tokenKey struct{}

// WithToken はリモートAPIに転送するbearerトークンをcontextに載せる。
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	TransferTimeout time.Duration
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

type Client struct {
	baseURL         string
	timeout         time.Duration
	transferTimeout time.Duration
	http            *http.Client
	breaker         *gobreaker.CircuitBreaker[*response]
	log             *zap.Logger
}

type response struct {
	status int
	body   []byte
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		timeout:         opts.Timeout,
		transferTimeout: opts.TransferTimeout,
		http:            opts.HTTPClient,
		log:             opts.Logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "shop-api",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		//4xxは相手が生きているので失敗に数えない
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code, ok := StatusCode(err)
			return ok && code < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

type request struct {
	op      string
	method  string
	path    string
	body    interface{}
	headers map[string]string
	timeout time.Duration
}

// do は1回の呼び出し。outがnilなら応答bodyは読み捨てる。
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(callCtx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w: %v", req.op, repository.ErrRemoteUnavailable, err)
		}
		return err
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", req.op, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", req.op, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("shop api call failed",
			zap.String("op", req.op),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s: %w", req.op, repository.ErrRemoteTimeout)
		}
		return nil, fmt.Errorf("%s: %w: %v", req.op, repository.ErrRemoteUnavailable, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s: %w", req.op, repository.ErrRemoteTimeout)
		}
		return nil, fmt.Errorf("%s: read response: %w: %v", req.op, repository.ErrRemoteUnavailable, err)
	}

	c.log.Debug("shop api call",
		zap.String("op", req.op),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &repository.RemoteError{Op: req.op, StatusCode: httpResp.StatusCode, Message: errorMessage(data)}
	}
	return &response{status: httpResp.StatusCode, body: data}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// {"message": ...} / {"error": ...} / 生テキスト
func errorMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &m); err == nil {
		if m.Message != "" {
			return m.Message
		}
		if m.Error != "" {
			return m.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
