package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Transport opens an authenticated session for one run
type Transport interface {
	Authenticate(ctx context.Context) (BatchSender, error)
}

// BatchSender delivers one batch of records of a single entity type
type BatchSender interface {
	Send(ctx context.Context, entity EntityType, records []Record) (*BatchResponse, error)
}

// TransmitterConfig configures delivery to the mirror
type TransmitterConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// Transmitter pushes batches to the mirror with bounded retries. Only
// transient failures are retried; authentication and rejected batches are
// returned immediately.
type Transmitter struct {
	cfg     TransmitterConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewTransmitter creates a transmitter. client may be nil.
func NewTransmitter(cfg TransmitterConfig, client *http.Client, log zerolog.Logger) *Transmitter {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Transmitter{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With().Str("component", "transmitter").Logger(),
	}
}

// Authenticate fetches a fresh client-credentials token. Each run gets its
// own token.
func (t *Transmitter) Authenticate(ctx context.Context) (BatchSender, error) {
	cc := &clientcredentials.Config{
		ClientID:     t.cfg.ClientID,
		ClientSecret: t.cfg.ClientSecret,
		TokenURL:     t.cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)

	token, err := retry(ctx, t, "token", func() (*oauth2.Token, error) {
		tok, err := cc.Token(ctx)
		if err != nil {
			return nil, classifyTokenError(err)
		}
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return &session{t: t, token: token}, nil
}

type session struct {
	t     *Transmitter
	token *oauth2.Token
}

// Send posts records to {base}/sync/{entity}.
func (s *session) Send(ctx context.Context, entity EntityType, records []Record) (*BatchResponse, error) {
	body, err := json.Marshal(BatchRequest{Records: records})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "encode %s batch", entity), ErrMalformedBatch)
	}
	url := strings.TrimRight(s.t.cfg.BaseURL, "/") + "/sync/" + string(entity)

	return retry(ctx, s.t, string(entity), func() (*BatchResponse, error) {
		if err := s.t.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return s.post(ctx, url, body)
	})
}

func (s *session) post(ctx context.Context, url string, body []byte) (*BatchResponse, error) {
	reqCtx := ctx
	if s.t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.t.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(errors.Mark(err, ErrMalformedBatch))
	}
	req.Header.Set("Content-Type", "application/json")
	s.token.SetAuthHeader(req)

	resp, err := s.t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(errors.Mark(errors.Wrap(err, "post batch"), ErrTransientTransport))
		}
		return nil, errors.Mark(errors.Wrap(err, "post batch"), ErrTransientTransport)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		if IsTransient(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var out BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(errors.Mark(errors.Wrap(err, "decode mirror response"), ErrMalformedBatch))
	}
	return &out, nil
}

// classifyStatus maps a non-2xx mirror response to an error class.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := errors.Newf("mirror responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Mark(err, ErrAuthentication)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Mark(err, ErrTransientTransport)
	default:
		return errors.Mark(err, ErrMalformedBatch)
	}
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return errors.Mark(errors.Wrap(err, "fetch token"), ErrTransientTransport)
		}
		return backoff.Permanent(errors.Mark(errors.Wrap(err, "fetch token"), ErrAuthentication))
	}
	return errors.Mark(errors.Wrap(err, "fetch token"), ErrTransientTransport)
}

// retry runs op with capped exponential backoff. Errors wrapped with
// backoff.Permanent stop immediately.
func retry[T any](ctx context.Context, t *Transmitter, what string, op func() (T, error)) (T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.cfg.InitialBackoff
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = 500 * time.Millisecond
	}
	if t.cfg.MaxBackoff > 0 {
		exp.MaxInterval = t.cfg.MaxBackoff
	}
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(t.cfg.MaxAttempts-1)), ctx)
	attempt := 0
	res, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op()
	}, policy, func(err error, wait time.Duration) {
		t.log.Warn().Err(err).
			Str("target", what).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("mirror request failed, retrying")
	})
	if err != nil {
		return res, errors.Wrapf(err, "%s after %d attempt(s)", what, attempt)
	}
	return res, nil
}
