package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults for the invocation target.
var (
	DefaultAllowedOrgs = []string{"ns", "veolia"}
	DefaultEndpoints   = []string{"grpcs://peer0.bank.transport-chain.nl:7051"}
)

const (
	DefaultContractID = "bank-transport"
	DefaultFunction   = "payment"
	DefaultMethod     = "pay"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	o := &cfg.Orchestrator
	if len(o.AllowedOrgs) == 0 {
		o.AllowedOrgs = append([]string(nil), DefaultAllowedOrgs...)
	}
	if len(o.Target.Endpoints) == 0 {
		o.Target.Endpoints = append([]string(nil), DefaultEndpoints...)
	}
	if o.Target.ContractID == "" {
		o.Target.ContractID = DefaultContractID
	}
	if o.Target.Function == "" {
		o.Target.Function = DefaultFunction
	}
	if o.Target.Method == "" {
		o.Target.Method = DefaultMethod
	}
	if o.Channel == "" {
		o.Channel = o.Target.ContractID
	}

	s := &cfg.Subscription
	if s.Type == "" {
		s.Type = "http"
	}
	if s.ReconnectDelay == 0 {
		s.ReconnectDelay = time.Second
	}
	if s.MaxReconnect == 0 {
		s.MaxReconnect = 30 * time.Second
	}

	if cfg.Invoker.Type == "" {
		cfg.Invoker.Type = "http"
	}
	if cfg.Invoker.Timeout == 0 {
		cfg.Invoker.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
