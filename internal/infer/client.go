package infer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// timeSleep is the backoff seam for retries. Stubbed in tests to avoid
// real sleeps.
//
//nolint:gochecknoglobals // Test seam following the established retry pattern
var timeSleep = time.After

// defaultBaseURL is the Anthropic-style messages API endpoint.
const defaultBaseURL = "https://api.anthropic.com"

// apiVersion is the messages API version header value.
const apiVersion = "2023-06-01"

// maxResponseTokens bounds the completion size for selector proposals.
const maxResponseTokens = 1024

// Options configures a Client.
type Options struct {
	// APIKey authenticates against the inference service. Required; the
	// key is sent in a header and never logged.
	APIKey string

	// Model names the model handling requests.
	Model string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// RequestTimeout bounds one HTTP round-trip.
	RequestTimeout time.Duration

	// MaxHTMLBytes truncates the page snapshot sent with a request.
	MaxHTMLBytes int
}

// Client is the HTTP implementation of Proposer and ChallengeSolver against
// an Anthropic-style messages API. Transient failures (network errors,
// rate limits, 5xx) are retried with exponential backoff; request rejections
// are not.
type Client struct {
	httpClient   *http.Client
	apiKey       string
	model        string
	baseURL      string
	maxHTMLBytes int
	logger       zerolog.Logger
}

// Compile-time interface assertions.
var (
	_ Proposer        = (*Client)(nil)
	_ ChallengeSolver = (*Client)(nil)
)

// NewClient creates a Client. Returns ErrHealingUnavailable when no API key
// is configured, so callers can degrade instead of failing later.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, legionerrors.Wrap(legionerrors.ErrHealingUnavailable, "no inference api key configured")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = constants.DefaultInferTimeout
	}
	if opts.MaxHTMLBytes <= 0 {
		opts.MaxHTMLBytes = constants.DefaultMaxSnapshotBytes
	}
	return &Client{
		httpClient:   &http.Client{Timeout: opts.RequestTimeout},
		apiKey:       opts.APIKey,
		model:        opts.Model,
		baseURL:      opts.BaseURL,
		maxHTMLBytes: opts.MaxHTMLBytes,
		logger:       logger.With().Str("component", "infer").Logger(),
	}, nil
}

// ProposeSelectors asks the service for replacement locators for a broken
// selector entry. The reply must carry a strict-JSON selector proposal; the
// text is tolerated inside a fenced code block.
func (c *Client) ProposeSelectors(ctx context.Context, req Request) ([]domain.Proposal, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	html := req.Snapshot.HTML
	if len(html) > c.maxHTMLBytes {
		html = html[:c.maxHTMLBytes]
	}

	body := messagesRequest{
		Model:     c.model,
		MaxTokens: maxResponseTokens,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: buildSelectorPrompt(req, html)}},
		}},
	}

	text, err := c.send(ctx, &body)
	if err != nil {
		return nil, err
	}

	proposals, err := parseProposals(text)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("entry", req.EntryName).
		Int("proposals", len(proposals)).
		Msg("inference proposed selectors")
	return proposals, nil
}

// SolveChallenge sends the challenge screenshot and returns the bare text
// answer.
func (c *Client) SolveChallenge(ctx context.Context, png []byte) (string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", legionerrors.Wrap(legionerrors.ErrEmptyValue, "challenge screenshot")
	}

	body := messagesRequest{
		Model:     c.model,
		MaxTokens: maxResponseTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: "image/png",
						Data:      base64.StdEncoding.EncodeToString(png),
					},
				},
				{Type: "text", Text: challengePrompt},
			},
		}},
	}

	text, err := c.send(ctx, &body)
	if err != nil {
		return "", err
	}
	return parseChallengeAnswer(text), nil
}

// send posts the request with bounded retry and returns the first text
// block of the reply.
func (c *Client) send(ctx context.Context, body *messagesRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", legionerrors.Wrap(err, "failed to encode inference request")
	}

	var lastErr error
	backoff := constants.InferInitialBackoff

	for attempt := 1; attempt <= constants.MaxInferRetryAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Debug().
				Int("attempt", attempt).
				Int("max_attempts", constants.MaxInferRetryAttempts).
				Msg("retrying inference request")
		}

		text, err := c.post(ctx, payload)
		if err == nil {
			return text, nil
		}
		if !isRetryable(err) {
			return "", err
		}

		lastErr = err
		if attempt < constants.MaxInferRetryAttempts {
			c.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("inference request failed, will retry after backoff")

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-timeSleep(backoff):
				backoff *= constants.InferBackoffMultiplier
			}
		}
	}

	return "", fmt.Errorf("%w: max retries exceeded: %w", legionerrors.ErrHealingUnavailable, lastErr)
}

// post performs one HTTP round-trip against the messages endpoint.
func (c *Client) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", legionerrors.Wrap(err, "failed to build inference request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decoding.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", errTransport, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d: %s",
			legionerrors.ErrInferRequest, resp.StatusCode, truncateForLog(data))
	}

	var reply messagesResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", legionerrors.Wrap(legionerrors.ErrInferResponse, "invalid reply envelope")
	}
	for _, block := range reply.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", legionerrors.Wrap(legionerrors.ErrInferResponse, "reply carries no text block")
}

// errTransport marks retryable transport-level inference failures.
var errTransport = stderrors.New("inference transport failure")

// isRetryable reports whether a request failure is worth retrying: network
// errors, rate limits and 5xx are; rejections and bad replies are not.
func isRetryable(err error) bool {
	return stderrors.Is(err, errTransport)
}

// truncateForLog keeps error bodies short in wrapped errors.
func truncateForLog(data []byte) string {
	const limit = 200
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}

// messagesRequest is the wire shape of a messages API request.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// messagesResponse is the wire shape of a messages API reply.
type messagesResponse struct {
	Content []contentBlock `json:"content"`
}
