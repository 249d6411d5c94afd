package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStages(t *testing.T) {
	stages := Stages()
	assert.Len(t, stages, 12)

	seen := make(map[Stage]struct{}, len(stages))
	for _, stage := range stages {
		assert.True(t, stage.Valid())
		seen[stage] = struct{}{}
	}
	assert.Len(t, seen, 12)
}

func TestParseStage(t *testing.T) {
	t.Run("known stage", func(t *testing.T) {
		stage, err := ParseStage("depot_manager")
		require.NoError(t, err)
		assert.Equal(t, StageDepotManager, stage)
	})

	t.Run("case and whitespace are forgiven", func(t *testing.T) {
		stage, err := ParseStage("  Good_Standing ")
		require.NoError(t, err)
		assert.Equal(t, StageGoodStanding, stage)
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := ParseStage("shipped")
		assert.ErrorIs(t, err, ErrStageUnknown)
	})
}

func TestStageTables(t *testing.T) {
	assert.Equal(t, "brv_checked", StageBRVChecked.LiveTable())
	assert.Equal(t, "brv_checked_history", StageBRVChecked.HistoryTable())
}

func TestStageDisplay(t *testing.T) {
	assert.Equal(t, "Depot Manager", StageDepotManager.Display())
	assert.Equal(t, "Ordered", StageOrdered.Display())
	assert.Equal(t, "Ppmc Cancel Order", StagePPMCCancelOrder.Display())
}
