package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/tradecore/internal/schema"
)

const validYAML = `
exchange:
  name: HitBTC
  url: wss://api.hitbtc.com/api/2/ws
  publicKey: pub
  secretKey: sec
  commandsPerSecond: 5
markets:
  - pair: eth-btc
    intervals: [m1, h1]
logging:
  level: DEBUG
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradecore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadNormalises(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "hitbtc", cfg.Exchange.Name)
	assert.Equal(t, float64(5), cfg.Exchange.CommandsPerSecond)
	assert.Equal(t, 1, cfg.Exchange.CommandBurst, "burst defaults when omitted")
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Markets, 1)
	pair, intervals := cfg.Markets[0].Market()
	assert.Equal(t, schema.Pair("ETH-BTC"), pair)
	assert.Equal(t, []schema.Interval{schema.Interval1m, schema.Interval1h}, intervals)

	sc := cfg.SessionConfig()
	assert.Equal(t, "hitbtc", sc.Exchange)
	assert.Equal(t, "pub", sc.PublicKey)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("TRADECORE_PUBLIC_KEY", "env-pub")
	t.Setenv("TRADECORE_SECRET_KEY", "env-sec")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-pub", cfg.Exchange.PublicKey)
	assert.Equal(t, "env-sec", cfg.Exchange.SecretKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing url": `
exchange:
  name: hitbtc
  publicKey: pub
  secretKey: sec
markets:
  - pair: ETH-BTC
`,
		"non websocket url": `
exchange:
  name: hitbtc
  url: https://api.hitbtc.com
  publicKey: pub
  secretKey: sec
markets:
  - pair: ETH-BTC
`,
		"no markets": `
exchange:
  name: hitbtc
  url: wss://api.hitbtc.com/api/2/ws
  publicKey: pub
  secretKey: sec
`,
		"bad pair": `
exchange:
  name: hitbtc
  url: wss://api.hitbtc.com/api/2/ws
  publicKey: pub
  secretKey: sec
markets:
  - pair: ETHBTC
`,
		"bad interval": `
exchange:
  name: hitbtc
  url: wss://api.hitbtc.com/api/2/ws
  publicKey: pub
  secretKey: sec
markets:
  - pair: ETH-BTC
    intervals: [M2]
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
