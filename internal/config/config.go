// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/kelseyhightower/envconfig"
)

// Gateway and wishlist backends.
const (
	BackendStorefront = "storefront"
	BackendFirestore  = "firestore"
	BackendMemory     = "memory"
)

// Config holds all service configuration.
// Environment determines whether the storefront token may come from Secret Manager.
type Config struct {
	// Server settings
	Port        string `json:"port" envconfig:"PORT"`
	Environment string `json:"environment" envconfig:"ENVIRONMENT"` // "development" or "production"
	LogLevel    string `json:"log_level" envconfig:"LOG_LEVEL"`     // "debug", "info", "warn", "error"

	// StateFile is the persistence file holding the local session.
	StateFile string `json:"state_file" envconfig:"STATE_FILE"`

	// Gateway selects the commerce backend: "storefront" or "memory".
	Gateway string `json:"gateway" envconfig:"GATEWAY"`

	// GCP settings (required in production)
	GCPProject string `json:"gcp_project" envconfig:"GCP_PROJECT"`
	SecretName string `json:"secret_name" envconfig:"SECRET_NAME"`

	Storefront StorefrontConfig `json:"storefront" envconfig:"STOREFRONT"`
	Firebase   FirebaseConfig   `json:"firebase" envconfig:"FIREBASE"`
	Wishlist   WishlistConfig   `json:"wishlist" envconfig:"WISHLIST"`
}

// StorefrontConfig locates the storefront GraphQL API.
type StorefrontConfig struct {
	Endpoint       string `json:"endpoint" envconfig:"ENDPOINT"` // shop URL or full GraphQL URL
	AccessToken    string `json:"access_token" envconfig:"ACCESS_TOKEN"`
	APIVersion     string `json:"api_version" envconfig:"API_VERSION"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
	Fingerprint    bool   `json:"fingerprint" envconfig:"FINGERPRINT"`
}

// FirebaseConfig enables federated login when ProjectID is set.
type FirebaseConfig struct {
	ProjectID       string `json:"project_id" envconfig:"PROJECT_ID"`
	CredentialsFile string `json:"credentials_file" envconfig:"CREDENTIALS_FILE"`
}

// WishlistConfig selects where remote wishlists are kept.
type WishlistConfig struct {
	Backend         string `json:"backend" envconfig:"BACKEND"` // "firestore" or "memory"
	ProjectID       string `json:"project_id" envconfig:"PROJECT_ID"`
	Collection      string `json:"collection" envconfig:"COLLECTION"`
	CredentialsFile string `json:"credentials_file" envconfig:"CREDENTIALS_FILE"`
}

// accessSecret reads the latest version of a secret. Replaced in tests.
var accessSecret = accessSecretManager

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	cfg.applyDefaults()

	if cfg.Environment == "production" && cfg.Gateway == BackendStorefront && cfg.Storefront.AccessToken == "" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading storefront token: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Port = withDefault(c.Port, "8080")
	c.Environment = withDefault(c.Environment, "development")
	c.LogLevel = withDefault(c.LogLevel, "info")
	c.StateFile = withDefault(c.StateFile, "storefront-state.json")
	c.Gateway = withDefault(c.Gateway, BackendStorefront)
	c.SecretName = withDefault(c.SecretName, "storefront-access-token")
	c.Storefront.APIVersion = withDefault(c.Storefront.APIVersion, "2025-01")
	if c.Storefront.TimeoutSeconds <= 0 {
		c.Storefront.TimeoutSeconds = 30
	}
	c.Wishlist.Backend = withDefault(c.Wishlist.Backend, BackendMemory)
	c.Wishlist.ProjectID = withDefault(c.Wishlist.ProjectID, c.GCPProject)
	c.Wishlist.Collection = withDefault(c.Wishlist.Collection, "wishlists")
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the storefront access token.
// Secret name format: projects/{project}/secrets/{secret_name}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.SecretName)

	data, err := accessSecret(ctx, secretName)
	if err != nil {
		return err
	}
	c.Storefront.AccessToken = strings.TrimSpace(string(data))
	return nil
}

func accessSecretManager(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return result.Payload.Data, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	switch c.Gateway {
	case BackendStorefront:
		if c.Storefront.Endpoint == "" {
			return fmt.Errorf("storefront endpoint is required")
		}
		u, err := url.Parse(c.Storefront.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid storefront endpoint %q", c.Storefront.Endpoint)
		}
		if c.Storefront.AccessToken == "" {
			return fmt.Errorf("storefront access token is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported gateway: %s", c.Gateway)
	}

	switch c.Wishlist.Backend {
	case BackendFirestore:
		if c.Wishlist.ProjectID == "" {
			return fmt.Errorf("wishlist project_id (or GCP_PROJECT) is required for firestore")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported wishlist backend: %s", c.Wishlist.Backend)
	}

	if c.StateFile == "" {
		return fmt.Errorf("state_file is required")
	}
	return nil
}

// GraphQLEndpoint returns the storefront GraphQL URL. A bare shop URL gets
// the versioned API path appended.
func (c *Config) GraphQLEndpoint() string {
	endpoint := strings.TrimSuffix(c.Storefront.Endpoint, "/")
	if endpoint == "" {
		return ""
	}
	if strings.HasSuffix(endpoint, ".json") || strings.Contains(endpoint, "/api/") {
		return endpoint
	}
	return fmt.Sprintf("%s/api/%s/graphql.json", endpoint, c.Storefront.APIVersion)
}

// Timeout returns the per-request storefront timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Storefront.TimeoutSeconds) * time.Second
}

// FederatedEnabled reports whether federated login is configured.
func (c *Config) FederatedEnabled() bool {
	return c.Firebase.ProjectID != ""
}
