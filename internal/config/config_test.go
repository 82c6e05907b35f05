package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
chain:
  node_url: wss://node.example/ws
  chain_id: 56
  account_pk: ${TEST_ACCOUNT_PK}
  factory_address: "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"
  router_address: "0x10ED43C718714eb63d5aA57B78B54704E256024E"
  reference_address: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
trade:
  buy_in_amount: 0.1
  min_reserve: 5
  gas_price_gwei: 10
`

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_ACCOUNT_PK", "deadbeef")
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "deadbeef", cfg.Chain.AccountPK)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, 10, cfg.Trade.ReceiptMaxTries)
	assert.Equal(t, 2, cfg.Checks.RepeatCount)
	assert.Equal(t, int64(100), cfg.AutoSell.Percentage)
	assert.Equal(t, 0.5, cfg.Monitor.RugReservePct)
	assert.Equal(t, []string{"renounced", "none"}, cfg.Checks.Suite.OwnershipTargets)
}

func TestLoad_AmountConversions(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "100000000000000000", cfg.Trade.BuyIn.Wei().String())
	assert.Equal(t, "10000000000", cfg.Trade.GasPrice.GweiWei().String())
}

func TestLoad_RejectsMissingChainSettings(t *testing.T) {
	path := writeConfig(t, `
chain:
  node_url: wss://node.example/ws
trade:
  buy_in_amount: 0.1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factory/router/reference")
}

func TestLoad_RejectsZeroBuyIn(t *testing.T) {
	path := writeConfig(t, `
chain:
  node_url: wss://node.example/ws
  chain_id: 56
  factory_address: "0x01"
  router_address: "0x02"
  reference_address: "0x03"
trade:
  buy_in_amount: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buy_in_amount")
}
