// Package schedule handles task schedule definitions and the daemon's
// active schedule set.
package schedule

import (
	"fmt"
	"regexp"
	"strings"
)

// idPattern validates schedule identifiers: alphanumeric, underscore, hyphen, dot.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateID checks if a schedule identifier is valid.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("id must contain only alphanumeric characters, dots, underscores, and hyphens")
	}
	return nil
}

// Definition describes one task schedule. The cron expression is carried
// as-is; evaluating it is the job queue's concern.
type Definition struct {
	ID          string `yaml:"id"`
	Task        string `yaml:"task"`
	Cron        string `yaml:"cron"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// IsEnabled reports whether the schedule should be active. Schedules are
// enabled unless explicitly disabled.
func (d *Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Validate checks required fields.
func (d *Definition) Validate() error {
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if strings.TrimSpace(d.Task) == "" {
		return fmt.Errorf("task is required")
	}
	if len(strings.Fields(d.Cron)) < 5 {
		return fmt.Errorf("cron must have at least 5 fields, got %q", d.Cron)
	}
	return nil
}
