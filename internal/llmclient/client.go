// File: internal/llmclient/client.go
// Description: The model boundary. A Client turns the session state into a
// provider request, sends it, and parses the reply into typed actions. The
// provider backend is behind a small interface so tests can substitute canned
// responses.
package llmclient

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// backend generates one raw model response for a decision request.
type backend interface {
	generate(ctx context.Context, req schemas.DecisionRequest) (string, error)
}

// Client implements schemas.Planner over a provider backend.
type Client struct {
	backend backend
	cfg     config.ModelConfig
	logger  *zap.Logger
}

var _ schemas.Planner = (*Client)(nil)

// New builds a planner for the configured provider.
func New(cfg config.ModelConfig, logger *zap.Logger) (*Client, error) {
	var (
		b   backend
		err error
	)
	switch cfg.Provider {
	case "", "gemini":
		b, err = newGemini(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Client{backend: b, cfg: cfg, logger: logger.Named("llmclient")}, nil
}

// Decide implements schemas.Planner. One call covers one turn: the configured
// call timeout applies on top of any caller deadline, expiry surfaces as
// ErrModelTimeout and every other boundary fault as ErrModelResponse. Caller
// cancellation passes through untouched.
func (c *Client) Decide(ctx context.Context, req schemas.DecisionRequest) (*schemas.ModelDecision, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	raw, err := c.backend.generate(opCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn("Model call timed out.", zap.Duration("timeout", c.cfg.CallTimeout))
			return nil, fmt.Errorf("%w: no reply within %v", schemas.ErrModelTimeout, c.cfg.CallTimeout)
		}
		return nil, fmt.Errorf("%w: %v", schemas.ErrModelResponse, err)
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		c.logger.Warn("Model reply failed to parse.", zap.Error(err), zap.Int("raw_len", len(raw)))
		return nil, err
	}

	c.logger.Debug("Model decision parsed.",
		zap.Int("actions", len(decision.Actions)),
		zap.Bool("done", decision.Done))
	return decision, nil
}
