// Package vault retrieves deployment secrets from HashiCorp Vault. When
// Vault is disabled the service falls back to environment configuration.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"license-server/config"
)

// Secrets holds the secrets the service reads at startup
type Secrets struct {
	JWTSecret        string
	DatabasePassword string
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// LoadSecrets reads the startup secrets from the configured KV v2 path.
// Missing fields are left empty so environment values can fill them.
func (c *Client) LoadSecrets(ctx context.Context) (*Secrets, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secrets found at %s", c.config.SecretPath)
	}

	// KV v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	out := &Secrets{}
	if v, ok := data["jwt_secret"].(string); ok {
		out.JWTSecret = v
	}
	if v, ok := data["db_password"].(string); ok {
		out.DatabasePassword = v
	}

	return out, nil
}
