package params

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("LOG_FILE", "data/server.log")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("FEE_RATE_BP", "300")
	t.Setenv("TON_POLLING_INTERVAL_SEC", "30")

	cfg := LoadFromEnv("")

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "data/server.log", cfg.Server.LogFile)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"},
		cfg.Server.AllowedOrigins)
	assert.Equal(t, 300, cfg.Exchange.FeeRateBP)
	assert.Equal(t, 30*time.Second, cfg.Ton.PollInterval)
}

func TestDefaultsWithoutEnv(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.LogFile)
	assert.Equal(t, 200, cfg.Exchange.FeeRateBP)
	assert.Equal(t, int64(50_000), cfg.Ton.RateKopecksPerTon)
}
