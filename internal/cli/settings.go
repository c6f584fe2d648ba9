package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/perimetra/gwadmin/pkg/client"
)

// DefaultRedisAddr is used for checkpoint storage when neither the config
// file nor --redis names one.
const DefaultRedisAddr = "localhost:6379"

// FileConfig is the on-disk YAML configuration. Every field can be
// overridden by the matching flag.
type FileConfig struct {
	BaseURL   string   `yaml:"baseUrl"`
	Token     string   `yaml:"token"`
	Headers   []string `yaml:"headers"` // key:value strings
	Timeout   string   `yaml:"timeout"` // Go duration, e.g. "30s"
	TLSVerify bool     `yaml:"tlsVerify"`
	RedisAddr string   `yaml:"redisAddr"`
}

// LoadFileConfig reads and parses a YAML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// settings is the merged connection configuration for one invocation.
type settings struct {
	clientCfg client.Config
	redisAddr string
}

// resolveSettings merges the config file (if any) with the flags; flags
// win. Validation of the result happens in client.New.
func resolveSettings(cmd *cobra.Command) (*settings, error) {
	flags := cmd.Flags()

	var file FileConfig
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := LoadFileConfig(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	baseURL, _ := flags.GetString("base-url")
	if baseURL == "" {
		baseURL = file.BaseURL
	}

	token, _ := flags.GetString("token")
	if token == "" {
		token = file.Token
	}

	timeout, _ := flags.GetDuration("timeout")
	if timeout == 0 && file.Timeout != "" {
		parsed, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config timeout: %w", err)
		}
		timeout = parsed
	}

	tlsVerify := file.TLSVerify
	if flags.Changed("tls-verify") {
		tlsVerify, _ = flags.GetBool("tls-verify")
	}

	// File headers first, flag headers on top.
	headers, err := client.ParseHeaders(file.Headers)
	if err != nil {
		return nil, fmt.Errorf("config headers: %w", err)
	}
	flagHeaders, _ := flags.GetStringArray("header")
	overrides, err := client.ParseHeaders(flagHeaders)
	if err != nil {
		return nil, err
	}
	if headers == nil && len(overrides) > 0 {
		headers = make(map[string]string, len(overrides))
	}
	for key, value := range overrides {
		headers[key] = value
	}

	redisAddr, _ := flags.GetString("redis")
	if redisAddr == "" {
		redisAddr = file.RedisAddr
	}
	if redisAddr == "" {
		redisAddr = DefaultRedisAddr
	}

	cfg := client.DefaultConfig(baseURL)
	cfg.Token = token
	cfg.Headers = headers
	cfg.TLSVerify = tlsVerify
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	return &settings{clientCfg: cfg, redisAddr: redisAddr}, nil
}

// newClient resolves settings and constructs the executor.
func newClient(cmd *cobra.Command) (*client.Client, *settings, error) {
	resolved, err := resolveSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(resolved.clientCfg)
	if err != nil {
		return nil, nil, err
	}
	return c, resolved, nil
}
