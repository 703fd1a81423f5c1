package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	refreshRuns      atomic.Int64
	refreshFailures  atomic.Int64
	studiesScored    atomic.Int64
	studiesExcluded  atomic.Int64
	extractBatches   atomic.Int64
	httpRequests     atomic.Int64
	agentQueries     atomic.Int64
	alertsGenerated  atomic.Int64
	portfolioStudies atomic.Int64
)

func Init() {}

func IncRefreshRun() {
	refreshRuns.Add(1)
}

func IncRefreshFailure() {
	refreshFailures.Add(1)
}

// ObserveRecompute records one finished scoring cycle: how many studies made
// the snapshot and how many were excluded.
func ObserveRecompute(scored, excluded int) {
	studiesScored.Add(int64(scored))
	studiesExcluded.Add(int64(excluded))
	portfolioStudies.Store(int64(scored))
}

func IncExtractBatch() {
	extractBatches.Add(1)
}

func IncHTTPRequest() {
	httpRequests.Add(1)
}

func IncAgentQuery() {
	agentQueries.Add(1)
}

func AddAlerts(count int) {
	alertsGenerated.Add(int64(count))
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP insight_refresh_runs_total Number of portfolio refresh cycles started.\n")
	fmt.Fprintf(w, "# TYPE insight_refresh_runs_total counter\n")
	fmt.Fprintf(w, "insight_refresh_runs_total %d\n", refreshRuns.Load())

	fmt.Fprintf(w, "# HELP insight_refresh_failures_total Number of refresh cycles that failed and kept the previous snapshot.\n")
	fmt.Fprintf(w, "# TYPE insight_refresh_failures_total counter\n")
	fmt.Fprintf(w, "insight_refresh_failures_total %d\n", refreshFailures.Load())

	fmt.Fprintf(w, "# HELP insight_studies_scored_total Number of studies scored across all refresh cycles.\n")
	fmt.Fprintf(w, "# TYPE insight_studies_scored_total counter\n")
	fmt.Fprintf(w, "insight_studies_scored_total %d\n", studiesScored.Load())

	fmt.Fprintf(w, "# HELP insight_studies_excluded_total Number of studies excluded for invalid metrics across all refresh cycles.\n")
	fmt.Fprintf(w, "# TYPE insight_studies_excluded_total counter\n")
	fmt.Fprintf(w, "insight_studies_excluded_total %d\n", studiesExcluded.Load())

	fmt.Fprintf(w, "# HELP insight_extract_batches_total Number of extract batches accepted by the ingest API.\n")
	fmt.Fprintf(w, "# TYPE insight_extract_batches_total counter\n")
	fmt.Fprintf(w, "insight_extract_batches_total %d\n", extractBatches.Load())

	fmt.Fprintf(w, "# HELP insight_http_requests_total Number of HTTP requests served.\n")
	fmt.Fprintf(w, "# TYPE insight_http_requests_total counter\n")
	fmt.Fprintf(w, "insight_http_requests_total %d\n", httpRequests.Load())

	fmt.Fprintf(w, "# HELP insight_agent_queries_total Number of agent queries answered.\n")
	fmt.Fprintf(w, "# TYPE insight_agent_queries_total counter\n")
	fmt.Fprintf(w, "insight_agent_queries_total %d\n", agentQueries.Load())

	fmt.Fprintf(w, "# HELP insight_alerts_generated_total Number of alerts generated from published snapshots.\n")
	fmt.Fprintf(w, "# TYPE insight_alerts_generated_total counter\n")
	fmt.Fprintf(w, "insight_alerts_generated_total %d\n", alertsGenerated.Load())

	fmt.Fprintf(w, "# HELP insight_portfolio_studies Number of studies in the latest published snapshot.\n")
	fmt.Fprintf(w, "# TYPE insight_portfolio_studies gauge\n")
	fmt.Fprintf(w, "insight_portfolio_studies %d\n", portfolioStudies.Load())
}
