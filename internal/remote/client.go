// Package remote is the client for the back-office REST endpoints the
// chat console depends on.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/metrics"
	"github.com/capitalize-ai/admin-chat/pkg/tracing"
)

const (
	opFetchAll = "fetch_conversations"
	opMarkRead = "mark_read"

	maxBodyBytes = 16 << 20
)

// Config holds REST client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// FetchMaxElapsed bounds retries of FetchAll. Zero disables retries.
	FetchMaxElapsed time.Duration
}

// Client calls the conversation endpoints of the back office.
type Client struct {
	base       *url.URL
	token      string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *logger.Logger
}

// NewClient creates a REST client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		base:       base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: cfg.FetchMaxElapsed,
		logger:     logger.OrNop(log).Component("remote"),
	}, nil
}

// FetchAll returns every active conversation. Network failures and 5xx
// responses are retried with exponential backoff; application failures
// are not.
func (c *Client) FetchAll(ctx context.Context) ([]model.Conversation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "remote.fetch_all")
	defer span.End()

	var convs []model.Conversation
	operation := func() error {
		env, err := c.do(ctx, opFetchAll, http.MethodGet, "api/conversation/all")
		if err != nil {
			return err
		}
		if err := env.DecodeData(&convs); err != nil {
			return backoff.Permanent(asRemoteError(opFetchAll, err))
		}
		return nil
	}

	var err error
	if c.maxElapsed > 0 {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = c.maxElapsed
		err = backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			c.logger.Warn("conversation fetch failed, retrying",
				zap.Error(err),
				zap.Duration("wait", wait),
			)
		})
	} else {
		err = operation()
	}
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	convs = c.dropMissingIDs(convs)
	span.SetAttributes(attribute.Int("conversations", len(convs)))
	return convs, nil
}

// dropMissingIDs removes rows without a server-assigned ID.
func (c *Client) dropMissingIDs(convs []model.Conversation) []model.Conversation {
	kept := convs[:0]
	for _, conv := range convs {
		if conv.ID <= 0 {
			c.logger.Warn("dropping conversation without id", zap.String("host_name", conv.HostName))
			continue
		}
		kept = append(kept, conv)
	}
	return kept
}

// MarkRead acknowledges that the back office has read conversationID.
// It is not retried.
func (c *Client) MarkRead(ctx context.Context, conversationID int64) error {
	ctx, span := tracing.Tracer().Start(ctx, "remote.mark_read")
	defer span.End()
	span.SetAttributes(attribute.Int64("conversation.id", conversationID))

	env, err := c.do(ctx, opMarkRead, http.MethodPut, "api/conversation/read/"+strconv.FormatInt(conversationID, 10))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		return err
	}
	if !env.OK() {
		err := &model.RemoteCallError{Op: opMarkRead, StatusCode: http.StatusOK, RespCode: env.RespCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read rejected")
		return err
	}
	return nil
}

// do performs one request and decodes the envelope. Errors that should
// not be retried are wrapped in backoff.Permanent.
func (c *Client) do(ctx context.Context, op, method, path string) (*model.Envelope, error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordRemoteCall(op, status, time.Since(start).Seconds())
	}()

	u := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(&model.RemoteCallError{Op: op, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(&model.RemoteCallError{Op: op, Err: err})
		}
		return nil, &model.RemoteCallError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &model.RemoteCallError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env model.Envelope
	decodeErr := json.Unmarshal(body, &env)

	switch {
	case resp.StatusCode >= 500:
		return nil, &model.RemoteCallError{Op: op, StatusCode: resp.StatusCode, RespCode: env.RespCode}
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(&model.RemoteCallError{Op: op, StatusCode: resp.StatusCode, RespCode: env.RespCode})
	case decodeErr != nil:
		return nil, backoff.Permanent(&model.RemoteCallError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", decodeErr)})
	}

	status = "ok"
	if !env.OK() {
		status = "rejected"
	}
	return &env, nil
}

func asRemoteError(op string, err error) error {
	var re *model.RemoteCallError
	if errors.As(err, &re) {
		return err
	}
	var de *model.DeliveryError
	if errors.As(err, &de) {
		return &model.RemoteCallError{Op: op, StatusCode: http.StatusOK, RespCode: de.RespCode}
	}
	return &model.RemoteCallError{Op: op, StatusCode: http.StatusOK, Err: err}
}
