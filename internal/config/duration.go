package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a config duration. It accepts Go duration strings ("30s",
// "5m") and bare numbers, which are read as seconds (the common convention
// for check_interval style knobs).
type Duration struct {
	time.Duration
}

// Or returns the duration, or def when unset/zero.
func (d Duration) Or(def time.Duration) time.Duration {
	if d.Duration <= 0 {
		return def
	}
	return d.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		// Bare numeric strings also mean seconds.
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return d.setSeconds(n)
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		if v < 0 {
			return fmt.Errorf("duration must be >= 0, got %q", raw)
		}
		d.Duration = v
		return nil
	}

	// YAML integers arrive here as JSON numbers.
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", s)
	}
	return d.setSeconds(n)
}

func (d *Duration) setSeconds(n float64) error {
	if n < 0 {
		return fmt.Errorf("duration must be >= 0, got %v", n)
	}
	d.Duration = time.Duration(n * float64(time.Second))
	return nil
}
