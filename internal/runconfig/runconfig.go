// Package runconfig loads scenario files and run-time overrides for the
// z6sim CLI. It is the one place scenario YAML is parsed: core never reads
// a file directly, it only ever consumes the core.ScenarioProjection this
// package produces.
//
// Version: v0.1.0
package runconfig

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/z6sim/core"
	"github.com/copyleftdev/z6sim/pkg/utils"
)

// Version is the semantic version of this package's file format contract.
const Version = "v0.1.0"

// scenarioFile mirrors the YAML shape a scenario file is written in; it is
// an intermediate representation translated into core.ScenarioProjection by
// resolve, never handed to the scheduler directly.
type scenarioFile struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Runtime struct {
		DurationTicks     uint32 `yaml:"duration_ticks"`
		VUs               uint32 `yaml:"vus"`
		PRNGSeed          uint64 `yaml:"prng_seed"`
		MaxRetriesPerStep uint32 `yaml:"max_retries_per_step"`
	} `yaml:"runtime"`

	Target struct {
		Host     string `yaml:"host"`
		Port     uint16 `yaml:"port"`
		TLS      bool   `yaml:"tls"`
		Protocol string `yaml:"protocol"`
	} `yaml:"target"`

	Requests []struct {
		Name         string `yaml:"name"`
		Method       string `yaml:"method"`
		Path         string `yaml:"path"`
		HeaderCount  int    `yaml:"header_count"`
		BodySize     int    `yaml:"body_size"`
		TimeoutTicks uint64 `yaml:"timeout_ticks"`
		Weight       uint64 `yaml:"weight"`
	} `yaml:"requests"`

	Schedule struct {
		Type       string             `yaml:"type"`
		Parameters map[string]float64 `yaml:"parameters"`
	} `yaml:"schedule"`

	Assertions []struct {
		Kind      string  `yaml:"kind"`
		Threshold float64 `yaml:"threshold"`
		LessThan  bool    `yaml:"less_than"`
	} `yaml:"assertions"`
}

// LoadScenario reads and parses a scenario YAML file at path into a
// core.ScenarioProjection, applying env-derived overrides via viper
// (Z6SIM_RUNTIME_VUS, Z6SIM_RUNTIME_PRNG_SEED, Z6SIM_RUNTIME_DURATION_TICKS)
// the same way the teacher's config loader layers environment variables
// over file defaults.
func LoadScenario(path string) (*core.ScenarioProjection, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "read scenario file")
	}
	v.SetEnvPrefix("Z6SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var raw scenarioFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, utils.Wrap(err, "unmarshal scenario")
	}
	return resolve(raw)
}

// ParseScenarioYAML parses scenario YAML already in memory (used by tests
// and the bundled demo scenarios, which skip the viper file round-trip).
func ParseScenarioYAML(data []byte) (*core.ScenarioProjection, error) {
	var raw scenarioFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, utils.Wrap(err, "unmarshal scenario")
	}
	return resolve(raw)
}

func resolve(raw scenarioFile) (*core.ScenarioProjection, error) {
	sp := &core.ScenarioProjection{
		Metadata: core.ScenarioMetadata{Name: raw.Name, Version: raw.Version},
		Runtime: core.ScenarioRuntime{
			DurationTicks:     raw.Runtime.DurationTicks,
			VUs:               raw.Runtime.VUs,
			PRNGSeed:          raw.Runtime.PRNGSeed,
			MaxRetriesPerStep: raw.Runtime.MaxRetriesPerStep,
		},
		Target: core.Target{
			Host:     raw.Target.Host,
			Port:     raw.Target.Port,
			TLS:      raw.Target.TLS,
			Protocol: raw.Target.Protocol,
		},
		Schedule: core.Schedule{
			Type:       core.ScheduleType(raw.Schedule.Type),
			Parameters: raw.Schedule.Parameters,
		},
	}
	if sp.Metadata.Version == "" {
		sp.Metadata.Version = Version
	}
	if sp.Runtime.PRNGSeed == 0 {
		sp.Runtime.PRNGSeed = derivedSeed()
	}
	if sp.Runtime.MaxRetriesPerStep == 0 {
		sp.Runtime.MaxRetriesPerStep = 3
	}

	for _, r := range raw.Requests {
		sp.Requests = append(sp.Requests, core.RequestSpec{
			Name:         r.Name,
			Method:       core.RequestMethod(r.Method),
			Path:         r.Path,
			HeaderCount:  r.HeaderCount,
			BodySize:     r.BodySize,
			TimeoutTicks: r.TimeoutTicks,
			Weight:       r.Weight,
		})
	}
	for _, a := range raw.Assertions {
		sp.Assertions = append(sp.Assertions, core.Assertion{
			Kind:      core.AssertionKind(a.Kind),
			Threshold: a.Threshold,
			LessThan:  a.LessThan,
		})
	}

	if err := sp.Validate(); err != nil {
		return nil, fmt.Errorf("runconfig: %w", err)
	}
	return sp, nil
}

// derivedSeed produces a run identifier-derived seed for scenarios that
// don't pin prng_seed explicitly — SPEC_FULL.md's resolution of Open
// Question: every run is reproducible from the seed actually used, which is
// always recorded in the ledger header regardless of how it was chosen.
func derivedSeed() uint64 {
	id := uuid.New()
	var seed uint64
	for i, b := range id[:8] {
		seed |= uint64(b) << uint(i*8)
	}
	if seed == 0 {
		seed = 1
	}
	return seed
}
