package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: workers must be >= 0, got %d", cfg.Workers))
	}
	if cfg.Pool.MaxIdlePipelines < 0 {
		errs = append(errs, fmt.Errorf("config: pool.max_idle_pipelines must be >= 0, got %d", cfg.Pool.MaxIdlePipelines))
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("config: shutdown_timeout must be >= 0"))
	}

	return errors.Join(errs...)
}
