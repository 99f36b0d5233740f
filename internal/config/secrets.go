package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/crypto"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// OwnerKey returns the owner key source.
func (e EngineConfig) OwnerKey() crypto.KeyConfig {
	return crypto.KeyConfig{
		RawPrivateKey:    e.OwnerPrivateKey,
		EncryptedKeyPath: e.OwnerEncryptedKeyPath,
		KeyPassword:      e.OwnerKeyPassword,
	}
}

// OwnerAddress resolves the initial owner: the configured address, or the
// address of the owner key.
func (e EngineConfig) OwnerAddress() (common.Address, error) {
	if e.Owner != "" {
		return common.HexToAddress(e.Owner), nil
	}
	signer, err := crypto.LoadSigner(e.OwnerKey(), e.ChainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("config: owner key: %w", err)
	}
	return signer.Address(), nil
}

// ParsedPrices decodes the static oracle prices into fixed point.
func (o OracleConfig) ParsedPrices() (map[common.Address]*num.Uint, error) {
	out := make(map[common.Address]*num.Uint, len(o.Prices))
	for token, price := range o.Prices {
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("config: oracle price key %q is not an address", token)
		}
		v, err := num.ParseFixed(price)
		if err != nil {
			return nil, fmt.Errorf("config: oracle price for %s: %w", token, err)
		}
		out[common.HexToAddress(token)] = v
	}
	return out, nil
}

// HMACAuth returns the configured request signing key pairs.
func (s ServerConfig) HMACAuth() []crypto.HMACAuth {
	out := make([]crypto.HMACAuth, 0, len(s.HMACKeys))
	for _, k := range s.HMACKeys {
		auth := crypto.HMACAuth{Key: k.Key, Secret: k.Secret}
		if k.Account != "" {
			auth.Account = common.HexToAddress(k.Account)
		}
		out = append(out, auth)
	}
	return out
}

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Engine.OwnerPrivateKey)
	redact(&out.Engine.OwnerKeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)
	if cfg.Server.HMACKeys != nil {
		out.Server.HMACKeys = make([]HMACKeyConfig, len(cfg.Server.HMACKeys))
		for i, k := range cfg.Server.HMACKeys {
			redact(&k.Secret)
			out.Server.HMACKeys[i] = k
		}
	}

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Kafka.Brokers != nil {
		out.Kafka.Brokers = append([]string(nil), cfg.Kafka.Brokers...)
	}
	if cfg.Oracle.Prices != nil {
		out.Oracle.Prices = make(map[string]string, len(cfg.Oracle.Prices))
		for k, v := range cfg.Oracle.Prices {
			out.Oracle.Prices[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
