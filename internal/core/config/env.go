package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Identity is the organization and service user the process runs as.
type Identity struct {
	Org         string `env:"ORG"`
	ServiceUser string `env:"SERVICE_USER" envDefault:"service"`
}

// LoadIdentity reads the identity from environment variables.
func LoadIdentity() (Identity, error) {
	var id Identity
	if err := env.Parse(&id); err != nil {
		return Identity{}, fmt.Errorf("parse env: %w", err)
	}
	return id, nil
}
