package config

import (
	"time"

	redisclient "github.com/vietddude/orchestrator/internal/infra/redis"
	"github.com/vietddude/orchestrator/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Invoker      InvokerConfig      `yaml:"invoker"`
	Redis        redisclient.Config `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, text
	File       string `yaml:"file"`   // optional rotated log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// OrchestratorConfig holds the gate and the fixed invocation target.
type OrchestratorConfig struct {
	AllowedOrgs       []string      `yaml:"allowed_orgs"`
	Channel           string        `yaml:"channel"`
	Target            TargetConfig  `yaml:"target"`
	EventNames        []string      `yaml:"event_names"`        // empty = every named event
	InvocationTimeout time.Duration `yaml:"invocation_timeout"` // 0 = left to the invoker
	Retention         time.Duration `yaml:"retention"`          // 0 = keep audit records forever
}

// TargetConfig is the deployment-fixed chaincode call issued per event.
type TargetConfig struct {
	Endpoints  []string `yaml:"endpoints"`
	ContractID string   `yaml:"contract_id"`
	Function   string   `yaml:"function"`
	Method     string   `yaml:"method"`
}

// SubscriptionConfig selects how committed blocks are delivered.
type SubscriptionConfig struct {
	Type           string        `yaml:"type"` // http, redis
	URL            string        `yaml:"url"`
	Channel        string        `yaml:"channel"` // redis pub/sub channel
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxReconnect   time.Duration `yaml:"max_reconnect_delay"`
}

// InvokerConfig selects the chaincode invocation transport.
type InvokerConfig struct {
	Type    string        `yaml:"type"` // http, grpc
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}
