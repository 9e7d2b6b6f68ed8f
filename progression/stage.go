package progression

// Stage is a named tier of progression derived from level
type Stage string

const (
	StageNovice   Stage = "Novice"
	StageExplorer Stage = "Explorer"
	StageScholar  Stage = "Scholar"
	StageSage     Stage = "Sage"
	StageOracle   Stage = "Oracle"
)

type stageTier struct {
	minLevel int
	stage    Stage
	glyph    string
}

// Ordered by minLevel ascending. The first tier must start at level 1.
var stageTiers = []stageTier{
	{minLevel: 1, stage: StageNovice, glyph: "🌱"},
	{minLevel: 5, stage: StageExplorer, glyph: "🧭"},
	{minLevel: 10, stage: StageScholar, glyph: "📚"},
	{minLevel: 20, stage: StageSage, glyph: "🦉"},
	{minLevel: 35, stage: StageOracle, glyph: "🔮"},
}

// StageForLevel maps a level to its stage. Levels below 1 map to the first stage.
func StageForLevel(level int) Stage {
	stage := stageTiers[0].stage
	for _, tier := range stageTiers {
		if level < tier.minLevel {
			break
		}
		stage = tier.stage
	}
	return stage
}

// StageGlyph returns the display glyph for a stage, or an empty string for unknown stages
func StageGlyph(stage Stage) string {
	for _, tier := range stageTiers {
		if tier.stage == stage {
			return tier.glyph
		}
	}
	return ""
}

// Stages returns every stage in ascending order
func Stages() []Stage {
	out := make([]Stage, len(stageTiers))
	for i, tier := range stageTiers {
		out[i] = tier.stage
	}
	return out
}
