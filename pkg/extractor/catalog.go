package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// SourceInfo describes one extract source for API consumers: what the
// upstream system is and which score the rows feed.
type SourceInfo struct {
	Display     string `yaml:"display" json:"display"`
	Description string `yaml:"description" json:"description"`
	Feeds       string `yaml:"feeds" json:"feeds"`
}

// Catalog maps source names to their descriptions. Deployments can override
// the wording per sponsor without a rebuild.
type Catalog struct {
	Sources map[string]SourceInfo `yaml:"sources" json:"sources"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Sources) == 0 {
		return Catalog{}, fmt.Errorf("source catalog empty")
	}
	return cat, nil
}

func (c Catalog) Lookup(source string) (SourceInfo, bool) {
	if c.Sources == nil {
		return SourceInfo{}, false
	}
	info, ok := c.Sources[strings.ToLower(source)]
	return info, ok
}

func DefaultCatalog() Catalog {
	return Catalog{Sources: map[string]SourceInfo{
		models.SourceEDC: {
			Display:     "EDC Queries",
			Description: "Open and answered data queries per subject",
			Feeds:       "query_resolution",
		},
		models.SourceMissingPages: {
			Display:     "Missing CRF Pages",
			Description: "Expected case report form pages not yet entered",
			Feeds:       "form_signatures",
		},
		models.SourceSAE: {
			Display:     "SAE Reconciliation",
			Description: "Serious adverse events pending safety reconciliation",
			Feeds:       "risk:sae_issues",
		},
		models.SourceVisits: {
			Display:     "Subject Visits",
			Description: "Completed and overdue protocol visits",
			Feeds:       "visit_completeness",
		},
		models.SourceLabs: {
			Display:     "Lab Issues",
			Description: "Laboratory results with range or unit problems",
			Feeds:       "risk:lab_issues",
		},
		models.SourceCoding: {
			Display:     "Medical Coding",
			Description: "Adverse event and medication terms awaiting coding",
			Feeds:       "coding_completeness",
		},
		models.SourceEDRR: {
			Display:     "Edit Check Review",
			Description: "External data reconciliation report discrepancies",
			Feeds:       "risk:edrr_issues",
		},
		models.SourceInactivated: {
			Display:     "Inactivated Records",
			Description: "Records inactivated after source data verification",
			Feeds:       "sdv_status",
		},
	}}
}
