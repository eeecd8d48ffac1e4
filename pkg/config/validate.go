package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration against struct tags plus the
// cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %s", describeFirst(verrs))
		}
		return err
	}

	if cfg.API.AuthEnabled && cfg.API.JWTSecret == "" {
		return fmt.Errorf("invalid configuration: api.jwt_secret is required when api.auth_enabled is true")
	}
	if cfg.Directory.Type == "ldap" {
		if cfg.Directory.LDAP.URI == "" || cfg.Directory.LDAP.BaseDN == "" || cfg.Directory.LDAP.Domain == "" {
			return fmt.Errorf("invalid configuration: directory.ldap needs uri, base_dn, and domain")
		}
	}
	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func describeFirst(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "unknown validation failure"
	}
	e := verrs[0]
	return fmt.Sprintf("field %s failed rule %q (value %v)",
		e.Namespace(), e.Tag(), e.Value())
}
