// Package vault resolves secrets, such as the RCON password, from HashiCorp Vault.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"

	"github.com/kebairia/zipbackup/internal/config"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

var (
	// ErrClientInit indicates failure to initialize the Vault API client.
	ErrClientInit = errors.New("vault client initialization failed")
	// ErrSecretNotFound is returned when nothing is stored at the requested path.
	ErrSecretNotFound = errors.New("vault secret not found")
)

type Option func(*options)

type options struct {
	address  string
	token    string
	roleID   string
	roleName string
}

type Client struct {
	api  *vault.Client
	opts *options
}

// RCONCredentials is the shape of the secret holding the RCON password.
type RCONCredentials struct {
	Password string `mapstructure:"password"`
}

func WithAddress(address string) Option {
	return func(o *options) {
		o.address = address
	}
}

func WithAppRole(roleID, roleName string) Option {
	return func(o *options) {
		o.roleID = roleID
		o.roleName = roleName
	}
}

// NewClient creates and initializes a Vault Client using provided options.
// It will perform AppRole login if roleID and roleName are both set, otherwise
// the token from VAULT_TOKEN is used.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	o := &options{
		address:  os.Getenv("VAULT_ADDR"),
		token:    os.Getenv("VAULT_TOKEN"),
		roleID:   os.Getenv("VAULT_ROLE_ID"),
		roleName: os.Getenv("VAULT_ROLE_NAME"),
	}
	for _, opt := range opts {
		opt(o)
	}

	apiCfg := vault.DefaultConfig()
	if o.address != "" {
		apiCfg.Address = o.address
	}

	api, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	client := &Client{api: api, opts: o}
	if o.token != "" {
		client.api.SetToken(o.token)
	}

	if o.roleID != "" && o.roleName != "" {
		if err := client.loginAppRole(ctx); err != nil {
			return nil, fmt.Errorf("AppRole login failed: %w", err)
		}
	}

	return client, nil
}

// loginAppRole performs AppRole login using the configured roleID and roleName.
func (c *Client) loginAppRole(ctx context.Context) error {
	path := fmt.Sprintf(approleSecretIDPath, c.opts.roleName)
	resp, err := c.api.Logical().WriteWithContext(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("generate secret_id: %w", err)
	}
	sid, ok := resp.Data["secret_id"].(string)
	if !ok || sid == "" {
		return fmt.Errorf("no secret_id returned from %s", path)
	}

	loginData := map[string]any{
		"role_id":   c.opts.roleID,
		"secret_id": sid,
	}
	loginResp, err := c.api.Logical().WriteWithContext(ctx, approleLoginPath, loginData)
	if err != nil {
		return fmt.Errorf("approle login request: %w", err)
	}
	if loginResp.Auth == nil || loginResp.Auth.ClientToken == "" {
		return fmt.Errorf("no token in login response")
	}
	c.api.SetToken(loginResp.Auth.ClientToken)
	return nil
}

// ReadSecret decodes the secret stored at path into out. KV version 2
// responses are unwrapped from their "data" envelope.
func (c *Client) ReadSecret(ctx context.Context, path string, out any) error {
	secret, err := c.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	return decodeSecret(secret.Data, out)
}

func decodeSecret(data map[string]any, out any) error {
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}
	if err := mapstructure.Decode(data, out); err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}
	return nil
}

// RCONPassword returns the RCON password for the server config, reading it
// from Vault when a secret path is configured.
func RCONPassword(ctx context.Context, sc config.ServerConfig) (string, error) {
	if sc.RCONPasswordVaultPath == "" {
		return sc.RCONPassword, nil
	}

	var opts []Option
	if sc.VaultAddress != "" {
		opts = append(opts, WithAddress(sc.VaultAddress))
	}
	if sc.VaultRoleID != "" && sc.VaultRoleName != "" {
		opts = append(opts, WithAppRole(sc.VaultRoleID, sc.VaultRoleName))
	}
	client, err := NewClient(ctx, opts...)
	if err != nil {
		return "", err
	}

	var creds RCONCredentials
	if err := client.ReadSecret(ctx, sc.RCONPasswordVaultPath, &creds); err != nil {
		return "", err
	}
	if creds.Password == "" {
		return "", fmt.Errorf("%w: no password field at %s", ErrSecretNotFound, sc.RCONPasswordVaultPath)
	}
	return creds.Password, nil
}
