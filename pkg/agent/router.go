package agent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// formatter renders one intent's answer from the snapshot. study is nil when
// the query named no study.
type formatter func(snap *models.PortfolioSummary, study *models.StudySummary) string

type compiledIntent struct {
	name        string
	keywords    []string
	studyScoped bool
	format      formatter
}

// Router maps free-text queries onto a fixed intent table and renders canned
// answers from the latest snapshot. It keeps no state across calls.
type Router struct {
	intents []compiledIntent
}

func NewRouter(cfg IntentsConfig) (*Router, error) {
	formatters := map[string]formatter{
		IntentRisk:            formatRisk,
		IntentDQI:             formatDQI,
		IntentRecommendations: formatRecommendations,
		IntentCleanPatients:   formatCleanPatients,
		IntentPortfolio:       formatPortfolio,
		IntentHelp:            formatHelp,
	}
	studyScoped := map[string]bool{
		IntentRisk:            true,
		IntentDQI:             true,
		IntentRecommendations: true,
		IntentCleanPatients:   true,
	}

	var compiled []compiledIntent
	for _, intent := range cfg.Intents {
		format, ok := formatters[intent.Name]
		if !ok {
			return nil, fmt.Errorf("unknown agent intent %q", intent.Name)
		}
		keywords := make([]string, 0, len(intent.Keywords))
		for _, keyword := range intent.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" {
				keywords = append(keywords, keyword)
			}
		}
		compiled = append(compiled, compiledIntent{
			name:        intent.Name,
			keywords:    keywords,
			studyScoped: studyScoped[intent.Name],
			format:      format,
		})
	}
	return &Router{intents: compiled}, nil
}

// Respond routes one query against the given snapshot. The first configured
// intent with a keyword hit wins; nothing matching falls back to help.
// Callers guard against a nil snapshot.
func (r *Router) Respond(snap *models.PortfolioSummary, query string) models.AgentAnswer {
	normalized := strings.ToLower(strings.TrimSpace(query))
	intent := r.match(normalized)
	study := resolveStudy(snap, normalized)

	answer := models.AgentAnswer{
		Intent: intent.name,
		Text:   intent.format(snap, study),
	}
	if study != nil && intent.studyScoped {
		answer.StudyID = study.StudyID
	}
	return answer
}

func (r *Router) match(normalized string) compiledIntent {
	if normalized != "" {
		for _, intent := range r.intents {
			for _, keyword := range intent.keywords {
				if strings.Contains(normalized, keyword) {
					return intent
				}
			}
		}
	}
	return compiledIntent{name: IntentHelp, format: formatHelp}
}

// resolveStudy finds the study a query refers to: an ID token first, then a
// word of the study name. Several matches resolve to the first in snapshot
// order so answers stay deterministic.
func resolveStudy(snap *models.PortfolioSummary, normalized string) *models.StudySummary {
	if snap == nil || normalized == "" {
		return nil
	}

	tokens := make(map[string]struct{})
	for _, token := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	}) {
		tokens[token] = struct{}{}
	}

	for i := range snap.Studies {
		if _, ok := tokens[strings.ToLower(snap.Studies[i].StudyID)]; ok {
			return &snap.Studies[i]
		}
	}
	for i := range snap.Studies {
		for _, word := range strings.Fields(strings.ToLower(snap.Studies[i].StudyName)) {
			if len(word) < 4 {
				continue
			}
			if _, ok := tokens[word]; ok {
				return &snap.Studies[i]
			}
		}
	}
	return nil
}
