package agent

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Intent names the formatters can serve. Config entries referencing anything
// else are rejected when the router compiles.
const (
	IntentRisk            = "risk"
	IntentDQI             = "dqi"
	IntentRecommendations = "recommendations"
	IntentCleanPatients   = "clean_patients"
	IntentPortfolio       = "portfolio"
	IntentHelp            = "help"
)

type Intent struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type IntentsConfig struct {
	Intents []Intent `yaml:"intents" json:"intents"`
}

// LoadIntents reads the keyword-to-intent table from a YAML file. An empty
// path selects the compiled-in defaults.
func LoadIntents(path string) (IntentsConfig, error) {
	if path == "" {
		return DefaultIntents(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultIntents(), err
	}

	var cfg IntentsConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return IntentsConfig{}, err
	}

	if len(cfg.Intents) == 0 {
		return IntentsConfig{}, errors.New("no agent intents configured")
	}

	return cfg, nil
}

// DefaultIntents lists earlier entries first; when a query matches several
// intents the first match wins.
func DefaultIntents() IntentsConfig {
	return IntentsConfig{Intents: []Intent{
		{Name: IntentRecommendations, Keywords: []string{"recommend", "action", "fix", "improve", "remediate", "next steps"}},
		{Name: IntentCleanPatients, Keywords: []string{"clean", "dirty", "patients", "subjects"}},
		{Name: IntentRisk, Keywords: []string{"risk", "risky", "riskiest", "danger", "unsafe", "safety"}},
		{Name: IntentDQI, Keywords: []string{"dqi", "quality", "score", "index", "completeness"}},
		{Name: IntentPortfolio, Keywords: []string{"portfolio", "overview", "overall", "summary", "all studies"}},
		{Name: IntentHelp, Keywords: []string{"help", "what can you do", "usage"}},
	}}
}
