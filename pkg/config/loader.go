// Package config loads the gateway's instance/routing configuration from
// a YAML file and hot-reloads it on change, feeding core.Registry.Swap.
// Layered-struct style, defaults applied after parsing and validated
// before use, rebuilt around core.InstanceConfig/core.RoutingRule
// instead of a governance-proxy Config struct this module does not
// carry.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/jupiter/pkg/core"
	"mercator-hq/jupiter/pkg/security/auth"
)

// instanceYAML mirrors core.InstanceConfig in the on-disk format.
// Durations are plain strings ("30s") per yaml.v3 convention, applied
// consistently across every duration field.
type instanceYAML struct {
	Name              string            `yaml:"name"`
	DisplayName       string            `yaml:"display_name"`
	Provider          string            `yaml:"provider"`
	BaseURL           string            `yaml:"base_url"`
	AuthMode          string            `yaml:"auth_mode"`
	APIKey            string            `yaml:"api_key"`
	APIKeyEnv         string            `yaml:"api_key_env"`
	OAuthProviderName string            `yaml:"oauth_provider_name"`
	Priority          int               `yaml:"priority"`
	Weight            int               `yaml:"weight"`
	Timeout           string            `yaml:"timeout"`
	FailureCoolDown   string            `yaml:"failure_cool_down"`
	AnthropicVersion  string            `yaml:"anthropic_version"`
	Cache             core.CachePolicy  `yaml:"cache"`
	Tags              map[string]string `yaml:"tags"`
}

// routingRuleYAML mirrors core.RoutingRule.
type routingRuleYAML struct {
	Prefix   string `yaml:"prefix"`
	Provider string `yaml:"provider"`
}

// principalYAML mirrors auth.Principal.
type principalYAML struct {
	Key       string `yaml:"key"`
	Name      string `yaml:"name"`
	Enabled   *bool  `yaml:"enabled"`
	RateLimit string `yaml:"rate_limit"`
}

// File is the on-disk shape of the gateway's config file.
type File struct {
	ListenAddress   string                    `yaml:"listen_address"`
	DefaultProvider string                    `yaml:"default_provider"`
	Instances       map[string][]instanceYAML `yaml:"instances"`
	Routing         []routingRuleYAML         `yaml:"routing"`
	Principals      []principalYAML           `yaml:"principals"`
}

const (
	defaultListenAddress = ":8080"
	defaultTimeout       = 60 * time.Second
	defaultCoolDown      = 30 * time.Second
	defaultWeight        = 100
)

// Load reads and parses the config file at path, applying defaults for
// any field the file omits ("merge defaults before validate" ordering),
// and returns the registry inputs plus the resolved listen address.
func Load(path string) (providers map[string][]core.InstanceConfig, rules []core.RoutingRule, principals []*auth.Principal, defaultProvider, listenAddress string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, "", "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, nil, "", "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	listenAddress = f.ListenAddress
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}

	providers = make(map[string][]core.InstanceConfig, len(f.Instances))
	for key, instances := range f.Instances {
		converted := make([]core.InstanceConfig, 0, len(instances))
		for _, inst := range instances {
			cfg, convErr := convertInstance(inst)
			if convErr != nil {
				return nil, nil, nil, "", "", fmt.Errorf("config: instance %q in %q: %w", inst.Name, key, convErr)
			}
			converted = append(converted, cfg)
		}
		providers[key] = converted
	}

	rules = make([]core.RoutingRule, 0, len(f.Routing))
	for _, r := range f.Routing {
		if r.Prefix == "" || r.Provider == "" {
			return nil, nil, nil, "", "", fmt.Errorf("config: routing rule missing prefix or provider: %+v", r)
		}
		rules = append(rules, core.RoutingRule{Prefix: r.Prefix, Provider: r.Provider})
	}

	principals = make([]*auth.Principal, 0, len(f.Principals))
	for _, p := range f.Principals {
		if p.Key == "" {
			return nil, nil, nil, "", "", fmt.Errorf("config: principal %q missing key", p.Name)
		}
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		principals = append(principals, &auth.Principal{
			Key:       p.Key,
			Name:      p.Name,
			Enabled:   enabled,
			RateLimit: p.RateLimit,
			CreatedAt: time.Now(),
		})
	}

	return providers, rules, principals, f.DefaultProvider, listenAddress, nil
}

func convertInstance(inst instanceYAML) (core.InstanceConfig, error) {
	if inst.Name == "" {
		return core.InstanceConfig{}, fmt.Errorf("instance missing name")
	}
	if inst.BaseURL == "" {
		return core.InstanceConfig{}, fmt.Errorf("instance %q missing base_url", inst.Name)
	}

	timeout := defaultTimeout
	if inst.Timeout != "" {
		d, err := time.ParseDuration(inst.Timeout)
		if err != nil {
			return core.InstanceConfig{}, fmt.Errorf("instance %q: invalid timeout: %w", inst.Name, err)
		}
		timeout = d
	}

	coolDown := defaultCoolDown
	if inst.FailureCoolDown != "" {
		d, err := time.ParseDuration(inst.FailureCoolDown)
		if err != nil {
			return core.InstanceConfig{}, fmt.Errorf("instance %q: invalid failure_cool_down: %w", inst.Name, err)
		}
		coolDown = d
	}

	weight := inst.Weight
	if weight <= 0 {
		weight = defaultWeight
	}

	authMode := core.AuthMode(inst.AuthMode)
	if authMode == "" {
		authMode = core.AuthBearer
	}

	apiKey := inst.APIKey
	if apiKey == "" && inst.APIKeyEnv != "" {
		apiKey = os.Getenv(inst.APIKeyEnv)
		if apiKey == "" {
			return core.InstanceConfig{}, fmt.Errorf("instance %q: api_key_env %q is unset", inst.Name, inst.APIKeyEnv)
		}
	}

	return core.InstanceConfig{
		Name:              inst.Name,
		DisplayName:       inst.DisplayName,
		Provider:          core.ProviderKind(inst.Provider),
		BaseURL:           inst.BaseURL,
		AuthMode:          authMode,
		APIKey:            apiKey,
		OAuthProviderName: inst.OAuthProviderName,
		Priority:          inst.Priority,
		Weight:            weight,
		Timeout:           timeout,
		FailureCoolDown:   coolDown,
		AnthropicVersion:  inst.AnthropicVersion,
		Cache:             inst.Cache,
		Tags:              inst.Tags,
	}, nil
}
