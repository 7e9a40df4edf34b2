package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/barchat/pkg/jwtx"
)

// InitChatKeys generates the signing keys for this process.
//
// Keys live only in memory, so every access token issued before a restart
// fails verification afterwards. Clients recover with one refresh: refresh
// tokens are opaque and survive in the database. Use CHAT_NUM_KEYS to change
// how many keys are generated.
func InitChatKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager", "algorithm", "EdDSA", "num_keys", cfg.NumKeys)

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		NumKeys: cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("signing keys generated", "num_keys", km.NumSigners(), "issuer", cfg.Issuer)
	return km, nil
}
