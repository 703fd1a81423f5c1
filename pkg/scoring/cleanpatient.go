package scoring

import (
	"sort"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// ClassifySubjects splits a study's subjects into clean and dirty. A subject
// is dirty the moment any source reports an open issue against it; only a
// subject with no open signals at all counts as clean. The returned ID lists
// are sorted ascending and partition the population exactly.
func ClassifySubjects(subjects []models.SubjectRecord) models.CleanPatientStatus {
	clean := make([]string, 0, len(subjects))
	dirty := make([]string, 0)

	for _, s := range subjects {
		if s.HasOpenIssue() {
			dirty = append(dirty, s.SubjectID)
		} else {
			clean = append(clean, s.SubjectID)
		}
	}

	sort.Strings(clean)
	sort.Strings(dirty)

	total := len(subjects)
	pct := 0.0
	if total > 0 {
		pct = round2(100 * float64(len(clean)) / float64(total))
	}

	return models.CleanPatientStatus{
		Total:           total,
		Clean:           len(clean),
		Dirty:           len(dirty),
		CleanPercentage: pct,
		CleanSubjects:   clean,
		DirtySubjects:   dirty,
	}
}

// RollupSites aggregates subject records into per-site counts, ordered by
// site ID. Subjects without a site land under "unassigned".
func RollupSites(subjects []models.SubjectRecord) []models.SiteInfo {
	bySite := make(map[string]*models.SiteInfo)
	for _, s := range subjects {
		siteID := s.SiteID
		if siteID == "" {
			siteID = "unassigned"
		}
		site, ok := bySite[siteID]
		if !ok {
			site = &models.SiteInfo{SiteID: siteID}
			bySite[siteID] = site
		}
		site.SubjectCount++
		site.OpenQueries += s.OpenQueries
		site.MissingPages += s.MissingPages
	}

	out := make([]models.SiteInfo, 0, len(bySite))
	for _, site := range bySite {
		out = append(out, *site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}
