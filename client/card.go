// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-json-experiment/json"

	"github.com/agentwire/agentwire"
)

// AgentCardWellKnownPath is the conventional location of the agent
// card document.
const AgentCardWellKnownPath = "/.well-known/agent.json"

// AgentCard returns the cached agent card, or nil before any resolve.
func (c *Client) AgentCard() *agentwire.AgentCard {
	c.cardMu.RLock()
	defer c.cardMu.RUnlock()
	return c.card
}

func (c *Client) setCard(card *agentwire.AgentCard) {
	c.cardMu.Lock()
	c.card = card
	c.cardMu.Unlock()
}

// ResolveAgentCard fetches the agent card from the well-known path
// and caches it. The cached card gates streaming methods on the
// agent's declared capabilities.
func (c *Client) ResolveAgentCard(ctx context.Context) (*agentwire.AgentCard, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	const op = "resolve agent card"

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+AgentCardWellKnownPath, nil)
	if err != nil {
		return nil, newError(KindInvalidRequest, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.userAgent)
	if err := c.opts.creds.apply(req); err != nil {
		return nil, err
	}

	resp, err := c.invoker(ctx, req)
	if err != nil {
		return nil, Classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		herr := ClassifyHTTPStatus(op, resp.StatusCode)
		if detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512)); len(bytes.TrimSpace(detail)) > 0 {
			herr.Err = fmt.Errorf("%s", bytes.TrimSpace(detail))
		}
		return nil, herr
	}

	var card agentwire.AgentCard
	if err := json.UnmarshalRead(resp.Body, &card); err != nil {
		return nil, newError(KindProtocolViolation, op, fmt.Errorf("decode agent card: %w", err))
	}
	c.setCard(&card)
	return &card, nil
}
