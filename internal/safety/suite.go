package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/config"
)

// SuiteCheck is the HTTP safety-suite provider: ownership, liquidity lock,
// simulated buy, and code analysis, each independently skippable. It also
// serves the liquidity-await loop and the monitor's lock re-checks.
type SuiteCheck struct {
	cfg    config.SuiteConfig
	client *http.Client
	trail  *audit.Trail
}

// NewSuiteCheck creates the safety-suite provider.
func NewSuiteCheck(cfg config.SuiteConfig, trail *audit.Trail) *SuiteCheck {
	return &SuiteCheck{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		trail:  trail,
	}
}

// Name identifies the provider.
func (c *SuiteCheck) Name() string { return "safety-suite" }

// Check runs all four sub-checks concurrently and ANDs the verdicts.
func (c *SuiteCheck) Check(ctx context.Context, token common.Address) bool {
	if !c.cfg.Enabled {
		c.trail.Add(token, "suite: skipped")
		return true
	}

	results := make(chan bool, 4)
	go func() { results <- c.checkOwnership(ctx, token) }()
	go func() { results <- c.checkLiquidity(ctx, token, true) }()
	go func() { results <- c.checkSimulateBuy(ctx, token) }()
	go func() { results <- c.checkAnalyseCode(ctx, token) }()

	good := true
	for i := 0; i < 4; i++ {
		good = <-results && good
	}

	if good {
		c.trail.Add(token, "suite: OK")
	} else {
		c.trail.Add(token, "suite: rejected")
	}
	return good
}

// CheckExceptLiquidity runs the reduced set for the liquidity-await path.
func (c *SuiteCheck) CheckExceptLiquidity(ctx context.Context, token common.Address) bool {
	if !c.cfg.Enabled {
		return true
	}
	return c.checkOwnership(ctx, token) &&
		c.checkSimulateBuy(ctx, token) &&
		c.checkAnalyseCode(ctx, token)
}

// LiquidityLocked reports the current lock verdict, without the slow holders
// pre-check.
func (c *SuiteCheck) LiquidityLocked(ctx context.Context, token common.Address) bool {
	if !c.cfg.Enabled {
		return true
	}
	return c.checkLiquidity(ctx, token, false)
}

// apiGet fetches one suite endpoint with the provider's own retry budget.
// Returns nil after exhausting it.
func (c *SuiteCheck) apiGet(ctx context.Context, api string, token common.Address) []byte {
	url := fmt.Sprintf("%s/%s?tokenAddress=%s", c.cfg.Endpoint, api, strings.ToLower(token.Hex()))

	for t := 0; t < c.cfg.APIMaxTries; t++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil
		}
		resp, err := c.client.Do(req)
		if err == nil {
			body, rerr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if rerr == nil && resp.StatusCode == http.StatusOK {
				return body
			}
			err = fmt.Errorf("status %d", resp.StatusCode)
		}

		log.Error().Err(err).Str("token", token.Hex()).Str("api", api).Int("try", t+1).
			Msg("suite: API call failed")
		if !sleep(ctx, time.Duration(c.cfg.APITryDelayMs)*time.Millisecond) {
			return nil
		}
	}
	return nil
}

func (c *SuiteCheck) checkOwnership(ctx context.Context, token common.Address) bool {
	if !c.cfg.OwnershipEnabled {
		c.trail.Add(token, "suite: ownership - skipped")
		return true
	}

	body := c.apiGet(ctx, "ownership", token)
	if body == nil {
		return false
	}

	var payload struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Result == nil {
		c.trail.Add(token, "suite: ownership - invalid response")
		return false
	}

	// renounced: true, none: false, owned: "0x..".
	var verdict string
	var renounced bool
	var owner string
	switch {
	case json.Unmarshal(payload.Result, &renounced) == nil:
		if renounced {
			verdict = "renounced"
		} else {
			verdict = "none"
		}
	case json.Unmarshal(payload.Result, &owner) == nil:
		verdict = "owned"
	default:
		c.trail.Add(token, "suite: ownership - invalid response")
		return false
	}

	c.trail.Add(token, "suite: ownership - %s", verdict)
	return contains(c.cfg.OwnershipTargets, verdict)
}

// checkLiquidity resolves the lock verdict. Newly created pairs often have
// no pool registered yet, so "no pool" responses retry within the bounded
// budget instead of failing outright.
func (c *SuiteCheck) checkLiquidity(ctx context.Context, token common.Address, holdersCheck bool) bool {
	if !c.cfg.LiquidityEnabled {
		c.trail.Add(token, "suite: liquidity - skipped")
		return true
	}

	for tries := 0; tries < c.cfg.LiquidityMaxTries; tries++ {
		if !sleep(ctx, time.Duration(c.cfg.LiquidityDelayMs)*time.Millisecond) {
			return false
		}

		if holdersCheck {
			body := c.apiGet(ctx, "holders", token)
			if body == nil {
				return false
			}
			var payload struct {
				Result struct {
					Liquidity *bool `json:"liquidity"`
				} `json:"result"`
			}
			if err := json.Unmarshal(body, &payload); err != nil || payload.Result.Liquidity == nil {
				c.trail.Add(token, "suite: liquidity - invalid holders response")
				return false
			}
			if !*payload.Result.Liquidity {
				continue // pool not visible yet
			}
			holdersCheck = false
		}

		body := c.apiGet(ctx, "liqlocked", token)
		if body == nil {
			return false
		}
		var payload struct {
			Result struct {
				Status     *string  `json:"status"`
				RiskAmount *float64 `json:"riskAmount"`
			} `json:"result"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Result.Status == nil {
			c.trail.Add(token, "suite: liquidity - invalid response")
			return false
		}
		if *payload.Result.Status != "success" {
			continue // no pool yet
		}
		if payload.Result.RiskAmount == nil {
			c.trail.Add(token, "suite: liquidity - invalid risk amount")
			return false
		}

		verdict := "unlocked"
		if *payload.Result.RiskAmount < c.cfg.LiquidityRiskMax {
			verdict = "locked"
		}
		c.trail.Add(token, "suite: liquidity - %s", verdict)
		return contains(c.cfg.LiquidityTargets, verdict)
	}

	c.trail.Add(token, "suite: liquidity - no pool")
	return false
}

func (c *SuiteCheck) checkSimulateBuy(ctx context.Context, token common.Address) bool {
	if !c.cfg.SimulateBuyEnabled {
		c.trail.Add(token, "suite: simulatebuy - skipped")
		return true
	}

	body := c.apiGet(ctx, "simulatebuy", token)
	if body == nil {
		return false
	}

	var payload struct {
		Result struct {
			Error      *bool    `json:"error"`
			IsHoneypot *bool    `json:"isHoneypot"`
			BuyFee     *float64 `json:"buyFee"`
			SellFee    *float64 `json:"sellFee"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Result.Error == nil {
		c.trail.Add(token, "suite: simulatebuy - invalid response")
		return false
	}

	if *payload.Result.Error {
		// The simulated buy itself reverted, which is what a honeypot does.
		c.trail.Add(token, "suite: simulatebuy - simulation error")
		return false
	}
	if payload.Result.IsHoneypot == nil || *payload.Result.IsHoneypot {
		c.trail.Add(token, "suite: honeypot - yes")
		return false
	}
	if payload.Result.BuyFee == nil || payload.Result.SellFee == nil ||
		*payload.Result.BuyFee > c.cfg.MaxBuyFee || *payload.Result.SellFee > c.cfg.MaxSellFee {
		c.trail.Add(token, "suite: high fees - yes")
		return false
	}

	c.trail.Add(token, "suite: honeypot - no, high fees - no")
	return true
}

func (c *SuiteCheck) checkAnalyseCode(ctx context.Context, token common.Address) bool {
	if !c.cfg.CodeEnabled {
		c.trail.Add(token, "suite: analysecode - skipped")
		return true
	}

	body := c.apiGet(ctx, "analysecode", token)
	if body == nil {
		return false
	}

	var payload struct {
		Result struct {
			Verified      *bool `json:"verified"`
			DetectedScams []struct {
				Type string `json:"type"`
			} `json:"detectedScams"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Result.Verified == nil {
		c.trail.Add(token, "suite: analysecode - invalid response")
		return false
	}

	if !*payload.Result.Verified {
		c.trail.Add(token, "suite: code - not verified")
		return false
	}
	if len(payload.Result.DetectedScams) > 0 {
		kinds := make([]string, 0, len(payload.Result.DetectedScams))
		for _, s := range payload.Result.DetectedScams {
			kinds = append(kinds, s.Type)
		}
		c.trail.Add(token, "suite: code - scams detected: %s", strings.Join(kinds, ","))
		return false
	}

	c.trail.Add(token, "suite: code - verified, no scams")
	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
