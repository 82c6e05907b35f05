package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/config"
)

// offendingWords are source fragments seen in known scam contracts. A match
// anywhere in the verified source rejects the token.
var offendingWords = []string{
	"Handling Request",
	"require(txoo && !bl[msg.sender])",
	"FOR VALUE PROTECTION, YOU CAN ONLY SELL",
	"Syntax Error. Please Re-Submit Order",
	"Error: Can not sell this token",
	"SLAVETAX",
	`"please wait"`,
	`"Not you"`,
	"account is freez",
	"Transaction amount exceeds the configured limit",
	"Tokens cannot be transferred",
	"sefhi = 2 weeks",
	`"Tokens are here"`,
	"[account] = 1;",
}

// SourceCodeCheck fetches the token's verified contract source from a
// block-explorer API and scans it for offending fragments.
type SourceCodeCheck struct {
	cfg    config.SourceCodeConfig
	client *http.Client
	trail  *audit.Trail
}

// NewSourceCodeCheck creates the explorer source scanner.
func NewSourceCodeCheck(cfg config.SourceCodeConfig, trail *audit.Trail) *SourceCodeCheck {
	return &SourceCodeCheck{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		trail:  trail,
	}
}

// Name identifies the provider.
func (c *SourceCodeCheck) Name() string { return "source-code" }

type explorerResponse struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"` // array of sources, or an error string
}

// Check fetches and scans the contract source. Unreachable API or
// uninterpretable payload fails closed.
func (c *SourceCodeCheck) Check(ctx context.Context, token common.Address) bool {
	if !c.cfg.Enabled {
		c.trail.Add(token, "source-code: skipped")
		return true
	}

	url := fmt.Sprintf("%s?module=contract&action=getsourcecode&address=%s&apikey=%s",
		c.cfg.APIURL, strings.ToLower(token.Hex()), c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("token", token.Hex()).
			Msg("source-code: explorer API unreachable")
		c.trail.Add(token, "source-code: error accessing API")
		return false
	}
	defer resp.Body.Close()

	var body explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.trail.Add(token, "source-code: invalid API response")
		return false
	}

	if body.Message != "OK" {
		var msg string
		if json.Unmarshal(body.Result, &msg) == nil && msg == "Contract source code not verified" {
			return c.unverified(token)
		}
		log.Error().Str("token", token.Hex()).Str("message", body.Message).
			Msg("source-code: unexpected explorer response")
		return c.cfg.AllowUnverified
	}

	var sources []struct {
		SourceCode string `json:"SourceCode"`
	}
	if err := json.Unmarshal(body.Result, &sources); err != nil {
		c.trail.Add(token, "source-code: invalid API response")
		return false
	}

	for _, src := range sources {
		if src.SourceCode == "" {
			return c.unverified(token)
		}
		for _, word := range offendingWords {
			if strings.Contains(src.SourceCode, word) {
				log.Info().Str("token", token.Hex()).Str("fragment", word).
					Msg("source-code: offending fragment found")
				c.trail.Add(token, "source-code: contains %q", word)
				return false
			}
		}
	}

	c.trail.Add(token, "source-code: OK")
	return true
}

func (c *SourceCodeCheck) unverified(token common.Address) bool {
	if c.cfg.AllowUnverified {
		c.trail.Add(token, "source-code: not verified, allowed")
		return true
	}
	log.Info().Str("token", token.Hex()).Msg("source-code: contract not verified")
	c.trail.Add(token, "source-code: contract not verified")
	return false
}
