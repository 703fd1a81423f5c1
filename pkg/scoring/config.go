package scoring

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// DQI component names. Each component reads one extract source; a missing
// source neutralizes the component instead of zeroing it.
const (
	ComponentVisitCompleteness  = "visit_completeness"
	ComponentQueryResolution    = "query_resolution"
	ComponentSDVStatus          = "sdv_status"
	ComponentCodingCompleteness = "coding_completeness"
	ComponentFormSignatures     = "form_signatures"
)

// Risk factor names, matching the metric fields they weight.
const (
	FactorSAEIssues          = "sae_issues"
	FactorMissingPages       = "missing_pages"
	FactorOverdueVisits      = "overdue_visits"
	FactorLabIssues          = "lab_issues"
	FactorCodingIssues       = "coding_issues"
	FactorEDRRIssues         = "edrr_issues"
	FactorInactivatedRecords = "inactivated_records"
)

// weightTolerance bounds the allowed drift of the DQI weight sum from 1.0.
const weightTolerance = 1e-6

// ConfigError marks a scoring configuration the engine refuses to start with.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scoring config: %s", e.Reason)
}

type Config struct {
	DQI          DQIConfig  `yaml:"dqi"`
	Risk         RiskConfig `yaml:"risk"`
	TopRiskLimit int        `yaml:"top_risk_limit"`
}

type DQIConfig struct {
	Weights      map[string]float64 `yaml:"weights"`
	NeutralScore float64            `yaml:"neutral_score"`
}

type RiskConfig struct {
	Weights map[string]float64 `yaml:"weights"`
	Ceiling float64            `yaml:"ceiling"`
}

// DefaultConfig returns the built-in scoring parameters used when no YAML
// file is configured.
func DefaultConfig() *Config {
	return &Config{
		DQI: DQIConfig{
			Weights: map[string]float64{
				ComponentVisitCompleteness:  0.30,
				ComponentQueryResolution:    0.25,
				ComponentSDVStatus:          0.20,
				ComponentCodingCompleteness: 0.15,
				ComponentFormSignatures:     0.10,
			},
			NeutralScore: 50,
		},
		Risk: RiskConfig{
			Weights: map[string]float64{
				FactorSAEIssues:          10.0,
				FactorMissingPages:       2.0,
				FactorOverdueVisits:      1.5,
				FactorLabIssues:          1.0,
				FactorCodingIssues:       1.0,
				FactorEDRRIssues:         1.0,
				FactorInactivatedRecords: 0.5,
			},
			Ceiling: 80,
		},
		TopRiskLimit: 5,
	}
}

// LoadConfig reads scoring parameters from a YAML file. An empty path selects
// the defaults. Sections absent from the file keep their default values; the
// merged result is validated before use.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read scoring config: %w", err)
		}

		var loaded Config
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse scoring config: %w", err)
		}

		if loaded.DQI.Weights != nil {
			cfg.DQI.Weights = loaded.DQI.Weights
		}
		if loaded.DQI.NeutralScore != 0 {
			cfg.DQI.NeutralScore = loaded.DQI.NeutralScore
		}
		if loaded.Risk.Weights != nil {
			cfg.Risk.Weights = loaded.Risk.Weights
		}
		if loaded.Risk.Ceiling != 0 {
			cfg.Risk.Ceiling = loaded.Risk.Ceiling
		}
		if loaded.TopRiskLimit != 0 {
			cfg.TopRiskLimit = loaded.TopRiskLimit
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the calculators cannot score with. The
// returned error is always a *ConfigError.
func (c *Config) Validate() error {
	if len(c.DQI.Weights) == 0 {
		return &ConfigError{Reason: "no dqi component weights configured"}
	}

	sum := 0.0
	for name, w := range c.DQI.Weights {
		if _, ok := componentSources[name]; !ok {
			return &ConfigError{Reason: fmt.Sprintf("unknown dqi component %q", name)}
		}
		if w < 0 {
			return &ConfigError{Reason: fmt.Sprintf("negative weight for dqi component %q", name)}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return &ConfigError{Reason: fmt.Sprintf("dqi component weights sum to %.6f, want 1.0", sum)}
	}

	if c.DQI.NeutralScore < 0 || c.DQI.NeutralScore > 100 {
		return &ConfigError{Reason: fmt.Sprintf("neutral score %.2f outside [0, 100]", c.DQI.NeutralScore)}
	}

	if len(c.Risk.Weights) == 0 {
		return &ConfigError{Reason: "no risk factor weights configured"}
	}
	for name, w := range c.Risk.Weights {
		if !knownRiskFactor(name) {
			return &ConfigError{Reason: fmt.Sprintf("unknown risk factor %q", name)}
		}
		if w < 0 {
			return &ConfigError{Reason: fmt.Sprintf("negative weight for risk factor %q", name)}
		}
	}
	if c.Risk.Ceiling <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("risk ceiling %.2f must be positive", c.Risk.Ceiling)}
	}

	if c.TopRiskLimit <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("top risk limit %d must be positive", c.TopRiskLimit)}
	}

	return nil
}

func knownRiskFactor(name string) bool {
	switch name {
	case FactorSAEIssues, FactorMissingPages, FactorOverdueVisits,
		FactorLabIssues, FactorCodingIssues, FactorEDRRIssues,
		FactorInactivatedRecords:
		return true
	}
	return false
}
