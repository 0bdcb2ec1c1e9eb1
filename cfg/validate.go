package cfg

import "fmt"

var validSeverities = map[string]bool{
	"trace": true, "debug": true, "info": true, "warning": true, "error": true, "off": true,
}

var validFormats = map[string]bool{"text": true, "json": true}

// ValidateConfig returns a non-nil error if the config is invalid. Unlike
// port/workers (which spec.md defines as silently falling back to
// defaults), a malformed ambient-stack flag is a hard startup error, same as
// the teacher's own ValidateConfig.
func ValidateConfig(c *Config) error {
	if !validSeverities[c.Logging.Severity] {
		return fmt.Errorf("invalid --log-severity %q: must be one of trace, debug, info, warning, error, off", c.Logging.Severity)
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid --log-format %q: must be text or json", c.Logging.Format)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("invalid --metrics-port %d: must be in [0,65535]", c.Metrics.Port)
	}
	return nil
}
