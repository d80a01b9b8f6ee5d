package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Hardware profiles. The two deployed firmware variants differ in gas sensor
// scaling and in whether an indicator output exists; a profile only supplies
// defaults, so any key set in the file or environment still wins.
const (
	ProfileIrrigation = "irrigation"
	ProfileClimate    = "climate"
)

var profiles = map[string]map[string]any{
	ProfileIrrigation: {
		"sampler.gas_scale":            1000.0,
		"thresholds.gas_ppm":           800.0,
		"thresholds.moisture_pct":      20.0,
		"thresholds.indicator_enabled": false,
		"valve.max_open":               3 * time.Second,
	},
	ProfileClimate: {
		"sampler.gas_scale":            100.0,
		"thresholds.temperature_c":     20.0,
		"thresholds.humidity_pct":      60.0,
		"thresholds.indicator_enabled": true,
	},
}

// Profiles returns the known profile names, sorted.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applyProfile(v *viper.Viper, name string) error {
	defaults, ok := profiles[name]
	if !ok {
		return fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(Profiles(), ", "))
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return nil
}
