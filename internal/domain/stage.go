package domain

import "strings"

// Stage represents one fixed step of the NPA order-processing pipeline.
// The set is closed: the upstream daily report sections map 1:1 onto these
// values and each stage owns exactly one live table and one history table.
type Stage string

const (
	StageOrdered             Stage = "ordered"
	StageApproved            Stage = "approved"
	StageBDCCancelOrder      Stage = "bdc_cancel_order"
	StageBDCDecline          Stage = "bdc_decline"
	StageBRVChecked          Stage = "brv_checked"
	StageDepotManager        Stage = "depot_manager"
	StageDepotManagerDecline Stage = "depot_manager_decline"
	StageGoodStanding        Stage = "good_standing"
	StageLoaded              Stage = "loaded"
	StageOrderReleased       Stage = "order_released"
	StagePPMCCancelOrder     Stage = "ppmc_cancel_order"
	StageMarked              Stage = "marked"
)

// Stages returns all pipeline stages in a stable order.
func Stages() []Stage {
	return []Stage{
		StageOrdered,
		StageApproved,
		StageBDCCancelOrder,
		StageBDCDecline,
		StageBRVChecked,
		StageDepotManager,
		StageDepotManagerDecline,
		StageGoodStanding,
		StageLoaded,
		StageOrderReleased,
		StagePPMCCancelOrder,
		StageMarked,
	}
}

// ParseStage converts a string into a Stage, returning ErrStageUnknown for
// anything outside the fixed set.
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(s)))
	if !stage.Valid() {
		return "", ErrStageUnknown
	}
	return stage, nil
}

// Valid reports whether the stage belongs to the fixed set.
func (s Stage) Valid() bool {
	switch s {
	case StageOrdered, StageApproved, StageBDCCancelOrder, StageBDCDecline,
		StageBRVChecked, StageDepotManager, StageDepotManagerDecline,
		StageGoodStanding, StageLoaded, StageOrderReleased,
		StagePPMCCancelOrder, StageMarked:
		return true
	}
	return false
}

// LiveTable returns the name of the stage's current-state table.
func (s Stage) LiveTable() string {
	return string(s)
}

// HistoryTable returns the name of the stage's append-only archive table.
func (s Stage) HistoryTable() string {
	return string(s) + "_history"
}

// Display returns the human-readable stage name used in report section
// headers and notification messages ("depot_manager" -> "Depot Manager").
func (s Stage) Display() string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
