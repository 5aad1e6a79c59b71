package app

import (
	"encoding/hex"
	"fmt"
	"time"

	"collabchat/pkg/config"
)

// validateConfig fails fast on configuration that would only surface as a
// confusing runtime error later.
func validateConfig(cfg *config.Config) error {
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if k := cfg.Security.EncryptionKeyHex; k != "" {
		raw, err := hex.DecodeString(k)
		if err != nil {
			return fmt.Errorf("security.encryption_key_hex is not valid hex: %w", err)
		}
		if len(raw) != 32 {
			return fmt.Errorf("security.encryption_key_hex must decode to 32 bytes, got %d", len(raw))
		}
	}
	if v := cfg.Live.OfflineTTL; v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("live.offline_ttl is not a valid duration: %w", err)
		}
	}
	if v := cfg.Live.TypingTTL; v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("live.typing_ttl is not a valid duration: %w", err)
		}
	}
	if (cfg.Server.TLS.CertFile == "") != (cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires both cert_file and key_file")
	}
	return nil
}
