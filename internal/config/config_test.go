package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		GatewayKeySecret:     "key-secret",
		GatewayWebhookSecret: "webhook-secret",
		RPCURL:               DefaultRPCURL,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.GatewayKeySecret = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.GatewayWebhookSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSharedSecret(t *testing.T) {
	cfg := validConfig()
	cfg.GatewayWebhookSecret = cfg.GatewayKeySecret
	assert.Error(t, cfg.Validate())
}

func TestValidatePrivateKey(t *testing.T) {
	key := strings.Repeat("ab", 32)

	cfg := validConfig()
	cfg.PrivateKey = key
	assert.NoError(t, cfg.Validate())

	cfg.PrivateKey = "0x" + key
	assert.NoError(t, cfg.Validate())

	cfg.PrivateKey = "tooshort"
	assert.Error(t, cfg.Validate())
}

func TestAnchorEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.AnchorEnabled())

	cfg.PrivateKey = strings.Repeat("ab", 32)
	assert.True(t, cfg.AnchorEnabled())

	cfg.RPCURL = ""
	assert.False(t, cfg.AnchorEnabled())
}
