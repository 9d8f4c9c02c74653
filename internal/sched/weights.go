package sched

import (
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Weights scale the soft-constraint penalties. They are configuration,
// not constants: ops tune them per deployment via SCHED_WEIGHTS_FILE.
type Weights struct {
	Proximity       float64 `yaml:"proximity"`       // per minute of travel to the slot
	PreferredWindow float64 `yaml:"preferredWindow"` // miss of the customer's preferred window
	WorkloadBalance float64 `yaml:"workloadBalance"` // per hour above the pool's same-day average
	Urgency         float64 `yaml:"urgency"`         // per priority tier per day of delay
}

func DefaultWeights() Weights {
	return Weights{Proximity: 1.0, PreferredWindow: 30.0, WorkloadBalance: 5.0, Urgency: 10.0}
}

// LoadWeights reads a YAML weights file; absent keys keep defaults.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	b, err := os.ReadFile(path)
	if err != nil {
		return w, err
	}
	if err := yaml.Unmarshal(b, &w); err != nil {
		return w, err
	}
	return w, nil
}

// WeightsFromEnv loads SCHED_WEIGHTS_FILE when set, defaults otherwise.
func WeightsFromEnv() Weights {
	path := os.Getenv("SCHED_WEIGHTS_FILE")
	if path == "" {
		return DefaultWeights()
	}
	w, err := LoadWeights(path)
	if err != nil {
		return DefaultWeights()
	}
	return w
}
