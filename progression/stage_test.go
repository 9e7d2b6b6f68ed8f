package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageForLevel_Boundaries(t *testing.T) {
	cases := []struct {
		level int
		stage Stage
	}{
		{0, StageNovice},
		{1, StageNovice},
		{4, StageNovice},
		{5, StageExplorer},
		{9, StageExplorer},
		{10, StageScholar},
		{19, StageScholar},
		{20, StageSage},
		{34, StageSage},
		{35, StageOracle},
		{1000, StageOracle},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.stage, StageForLevel(tc.level), "level=%d", tc.level)
	}
}

func TestStageForLevel_Contiguous(t *testing.T) {
	order := map[Stage]int{}
	for i, s := range Stages() {
		order[s] = i
	}

	// A stage never reappears once a later stage has been reached
	prev := order[StageForLevel(1)]
	for level := 2; level <= 200; level++ {
		cur := order[StageForLevel(level)]
		assert.GreaterOrEqual(t, cur, prev, "level=%d", level)
		assert.LessOrEqual(t, cur-prev, 1, "stage skipped at level=%d", level)
		prev = cur
	}
}

func TestStageGlyph(t *testing.T) {
	for _, s := range Stages() {
		assert.NotEmpty(t, StageGlyph(s))
	}
	assert.Empty(t, StageGlyph(Stage("Unknown")))
}
