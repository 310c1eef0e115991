package oms

import (
	"fmt"
	"time"
)

type SessionConfig struct {
	// CloseTime is the daily close as HH:MM in Location. DAY orders expire then.
	CloseTime string `yaml:"close_time"`
	Location  string `yaml:"location"`
}

type Session struct {
	close time.Duration
	loc   *time.Location
}

// NewSession returns nil when no close time is configured.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.CloseTime == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", cfg.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("session close_time %q: %w", cfg.CloseTime, err)
	}
	loc := time.UTC
	if cfg.Location != "" {
		if loc, err = time.LoadLocation(cfg.Location); err != nil {
			return nil, fmt.Errorf("session location %q: %w", cfg.Location, err)
		}
	}
	return &Session{close: time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, loc: loc}, nil
}

// NextClose is the first session close strictly after now.
func (s *Session) NextClose(now time.Time) time.Time {
	local := now.In(s.loc)
	y, m, d := local.Date()
	closeAt := time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(s.close)
	if !closeAt.After(local) {
		closeAt = time.Date(y, m, d+1, 0, 0, 0, 0, s.loc).Add(s.close)
	}
	return closeAt.UTC()
}
