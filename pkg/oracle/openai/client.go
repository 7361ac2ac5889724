/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: client.go
Description: OpenAI-compatible chat completions oracle. Requests are paced by a token bucket,
transient upstream failures (429, 408, 5xx) are retried with exponential backoff inside the
caller's deadline, and the reply content is extracted from the response document.
*/

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Options configures the client
type Options struct {
	BaseURL           string            `mapstructure:"base_url"`
	EndpointPath      string            `mapstructure:"endpoint_path"`
	Model             string            `mapstructure:"model"`
	APIKey            string            `mapstructure:"api_key"`
	APIKeyEnv         string            `mapstructure:"api_key_env"`
	Temperature       *float64          `mapstructure:"temperature"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Burst             int               `mapstructure:"burst"`
	MaxRetries        uint64            `mapstructure:"max_retries"`
	RetryInterval     time.Duration     `mapstructure:"retry_interval"`
	ExtraHeaders      map[string]string `mapstructure:"extra_headers"`

	HTTPClient *http.Client `mapstructure:"-"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
}

// Client implements oracle.Oracle
type Client struct {
	url     string
	apiKey  string
	model   string
	temp    *float64
	headers map[string]string
	hc      *http.Client
	limiter *rate.Limiter
	retries uint64
	retryIv time.Duration
	logger  logrus.FieldLogger
}

// New creates a client. The API key is taken from Options.APIKey or the
// environment variable named by Options.APIKeyEnv.
func New(opts Options, logger logrus.FieldLogger) (*Client, error) {
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai oracle: missing api key (set %s)", opts.APIKeyEnv)
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	url := opts.EndpointPath
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		url:     url,
		apiKey:  key,
		model:   opts.Model,
		temp:    opts.Temperature,
		headers: opts.ExtraHeaders,
		hc:      opts.HTTPClient,
		limiter: rate.NewLimiter(limit, opts.Burst),
		retries: opts.MaxRetries,
		retryIv: opts.RetryInterval,
		logger:  logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// upstreamError is a transient HTTP failure worth retrying
type upstreamError struct {
	status int
	msg    string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg)
}

func (e *upstreamError) Unwrap() error { return oracle.ErrUnavailable }

// Propose implements oracle.Oracle
func (c *Client) Propose(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: oracle.SystemPrompt()},
			{Role: "user", Content: req.UserPrompt()},
		},
		Temperature:    c.temp,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return oracle.Response{}, fmt.Errorf("failed to encode oracle request: %w", err)
	}

	var content string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		text, err := c.invoke(ctx, body)
		if err != nil {
			var ue *upstreamError
			if errors.As(err, &ue) {
				return err
			}
			return backoff.Permanent(err)
		}
		content = text
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryIv
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx)
	err = backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"error": err.Error(),
			"wait":  wait.String(),
		}).Warn("Oracle request failed, retrying")
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return oracle.Response{}, ctxErr
		}
		return oracle.Response{}, err
	}
	return oracle.DecodeResponse(content)
}

// invoke performs one HTTP exchange and returns the reply content
func (c *Client) invoke(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		if k != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", oracle.ErrUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusRequestTimeout,
			resp.StatusCode/100 == 5:
			return "", &upstreamError{status: resp.StatusCode, msg: msg}
		default:
			return "", fmt.Errorf("%w: openai upstream %d: %s", oracle.ErrUnavailable, resp.StatusCode, msg)
		}
	}

	content := gjson.GetBytes(data, "choices.0.message.content")
	if content.Type != gjson.String || content.String() == "" {
		return "", fmt.Errorf("%w: no message content", oracle.ErrInvalidResponse)
	}
	return content.String(), nil
}
