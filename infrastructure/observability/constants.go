package observability

// Metric name prefixes
const (
	MetricPrefix = "insightquest"
)

// Metric names
const (
	// Session metrics
	LoginsTotal = MetricPrefix + ".session.logins_total"

	// Progression metrics
	XPAwardedTotal = MetricPrefix + ".progression.xp_awarded_total"
	LevelUpsTotal  = MetricPrefix + ".progression.level_ups_total"

	// Ledger metrics
	BalanceFetchesTotal  = MetricPrefix + ".ledger.balance_fetches_total"
	BalanceFetchDuration = MetricPrefix + ".ledger.balance_fetch_duration"
)

// Label keys
const (
	LabelRestored = "restored"
	LabelRewarded = "rewarded"
	LabelLevel    = "level"
	LabelOutcome  = "outcome"
)

// Exporter types
const (
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
	ExporterNone    = "none"
)
