package domain

import (
	"fmt"
	"time"
)

// Category groups time controls the way players name them.
type Category string

const (
	CategoryBullet    Category = "bullet"
	CategoryBlitz     Category = "blitz"
	CategoryRapid     Category = "rapid"
	CategoryClassical Category = "classical"
)

// TimeControl is stored on the room record. A nil *TimeControl means untimed.
type TimeControl struct {
	InitialTimeMs int64    `json:"initialTimeMs" yaml:"initial_ms"`
	IncrementMs   int64    `json:"incrementMs" yaml:"increment_ms"`
	Category      Category `json:"category" yaml:"category"`
}

func (tc TimeControl) Initial() time.Duration   { return time.Duration(tc.InitialTimeMs) * time.Millisecond }
func (tc TimeControl) Increment() time.Duration { return time.Duration(tc.IncrementMs) * time.Millisecond }

func (tc TimeControl) Validate() error {
	if tc.InitialTimeMs <= 0 {
		return fmt.Errorf("time control: initial time must be positive, got %d", tc.InitialTimeMs)
	}
	if tc.IncrementMs < 0 {
		return fmt.Errorf("time control: negative increment %d", tc.IncrementMs)
	}
	return nil
}

// String renders the usual "5+3" notation in minutes and seconds.
func (tc TimeControl) String() string {
	min := tc.InitialTimeMs / 60000
	if tc.InitialTimeMs%60000 != 0 {
		return fmt.Sprintf("%ds+%d", tc.InitialTimeMs/1000, tc.IncrementMs/1000)
	}
	return fmt.Sprintf("%d+%d", min, tc.IncrementMs/1000)
}
