package clock

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/park285/cheese-online-chess/internal/domain"
	yaml "gopkg.in/yaml.v3"
)

// Unlimited selects an untimed room.
const Unlimited = "unlimited"

var ErrUnknownPreset = errors.New("unknown time control preset")

//go:embed presets.yaml
var presetsYAML []byte

var presets = mustLoadPresets(presetsYAML)

func mustLoadPresets(raw []byte) map[string]domain.TimeControl {
	m, err := parsePresets(raw)
	if err != nil {
		panic(fmt.Sprintf("clock: embedded presets: %v", err))
	}
	return m
}

func parsePresets(raw []byte) (map[string]domain.TimeControl, error) {
	var m map[string]domain.TimeControl
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for name, tc := range m {
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return m, nil
}

// Preset resolves a preset name. Unlimited and "" return nil with no error.
func Preset(name string) (*domain.TimeControl, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == Unlimited {
		return nil, nil
	}
	tc, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return &tc, nil
}

// PresetNames lists the timed presets, shortest first.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := presets[names[i]], presets[names[j]]
		if a.InitialTimeMs != b.InitialTimeMs {
			return a.InitialTimeMs < b.InitialTimeMs
		}
		if a.IncrementMs != b.IncrementMs {
			return a.IncrementMs < b.IncrementMs
		}
		return names[i] < names[j]
	})
	return names
}
