package cache

import (
	"fmt"
	"strconv"
	"time"
)

// Category TTL defaults. Reports are expensive and change slowly; lists of
// animals and medical records change often.
const (
	DefaultTTL        = 2 * time.Minute
	DefaultReportTTL  = 5 * time.Minute
	DefaultFarmTTL    = 2 * time.Minute
	DefaultCattleTTL  = time.Minute
	DefaultMedicalTTL = time.Minute
	DefaultUserTTL    = 10 * time.Minute

	// MinTTL is the smallest TTL accepted from configuration.
	MinTTL = time.Millisecond

	// MaxTTL is the largest TTL accepted from configuration (7 days).
	MaxTTL = 7 * 24 * time.Hour

	// minutesPerHour is used for duration formatting calculations.
	minutesPerHour = 60

	// hoursPerDay is used for duration formatting calculations.
	hoursPerDay = 24
)

// ErrInvalidTTL is returned for TTLs outside [MinTTL, MaxTTL].
var ErrInvalidTTL = fmt.Errorf("TTL must be between %s and %s", MinTTL, MaxTTL)

// TTLPolicy resolves the TTL for a key from its category.
type TTLPolicy struct {
	// Default applies to categories without an explicit entry.
	Default time.Duration

	// Categories maps a key category ("report", "cattle") to its TTL.
	Categories map[string]time.Duration
}

// DefaultTTLPolicy returns the built-in per-category TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default: DefaultTTL,
		Categories: map[string]time.Duration{
			"report":  DefaultReportTTL,
			"farm":    DefaultFarmTTL,
			"cattle":  DefaultCattleTTL,
			"medical": DefaultMedicalTTL,
			"user":    DefaultUserTTL,
		},
	}
}

// For returns the TTL for key.
func (p TTLPolicy) For(key string) time.Duration {
	if ttl, ok := p.Categories[Category(key)]; ok && ttl > 0 {
		return ttl
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultTTL
}

// Validate checks every configured TTL is within range.
func (p TTLPolicy) Validate() error {
	if err := validateTTL(p.Default); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	for category, ttl := range p.Categories {
		if err := validateTTL(ttl); err != nil {
			return fmt.Errorf("category %q: %w", category, err)
		}
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}
	return nil
}

// ParseTTL parses a TTL string in either format:
// - Integer seconds: "300".
// - Duration string: "5m", "1h30m", "250ms".
func ParseTTL(s string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(s); err == nil {
		ttl := time.Duration(seconds) * time.Second
		if vErr := validateTTL(ttl); vErr != nil {
			return 0, vErr
		}
		return ttl, nil
	}

	ttl, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL format: %w", err)
	}
	if vErr := validateTTL(ttl); vErr != nil {
		return 0, vErr
	}
	return ttl, nil
}

// FormatDuration formats a duration in a human-readable way.
// Examples: "250ms", "30s", "5m", "2h30m", "3d".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < hoursPerDay*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}
