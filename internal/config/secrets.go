package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Upbit.AccessKey)
	redact(&out.Upbit.SecretKey)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Strategy.Active != nil {
		out.Strategy.Active = append([]string(nil), cfg.Strategy.Active...)
	}
	if cfg.Strategy.Precedence != nil {
		out.Strategy.Precedence = append([]string(nil), cfg.Strategy.Precedence...)
	}
	if cfg.Session.Symbols != nil {
		out.Session.Symbols = append([]string(nil), cfg.Session.Symbols...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
