package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/arcadialab/keygate/pkg/cryptox"
	"github.com/arcadialab/keygate/pkg/idx"
	"github.com/arcadialab/keygate/pkg/jwtx"
)

// initSigningKey loads the RSA signing key from the configured PEM file,
// or generates an ephemeral one. Ephemeral keys invalidate all issued
// tokens on restart, which is acceptable for dev and test.
func initSigningKey(cfg Config, logger *slog.Logger) (jwtx.Signer, *jwtx.KeySet, error) {
	var pemKey []byte

	if cfg.KeyFile != "" {
		b, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read signing key: %w", err)
		}
		pemKey = b
		logger.Info("loaded signing key", "path", cfg.KeyFile)
	} else {
		b, err := cryptox.GenerateRSAKey(2048)
		if err != nil {
			return nil, nil, fmt.Errorf("generate signing key: %w", err)
		}
		pemKey = b
		logger.Warn("no signing key configured, generated an ephemeral key")
	}

	kid := idx.New().String()
	signer, err := jwtx.NewSignerRS256(kid, pemKey)
	if err != nil {
		return nil, nil, fmt.Errorf("init signer: %w", err)
	}
	if err := signer.Validate(); err != nil {
		return nil, nil, err
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, nil, fmt.Errorf("register public key: %w", err)
	}

	return signer, keys, nil
}
