package config_fx

import (
	"go.uber.org/fx"
	"storehere/pkg/config"
)

var Module = fx.Provide(provideConfig)

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
