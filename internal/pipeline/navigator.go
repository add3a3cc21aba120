package pipeline

import (
	"strconv"

	"crmboard/internal/models"
)

// StagePosition is either "All Stages" or a concrete stage.
type StagePosition struct {
	stageID int
	at      bool
}

func AllStages() StagePosition { return StagePosition{} }

func AtStage(stageID int) StagePosition { return StagePosition{stageID: stageID, at: true} }

func (p StagePosition) IsAll() bool { return !p.at }

func (p StagePosition) String() string {
	if !p.at {
		return "all"
	}
	return strconv.Itoa(p.stageID)
}

func (p StagePosition) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PositionOf resolves the filter against the visible stages. A selected stage
// id that is not visible counts as "All Stages".
func PositionOf(f FilterState, visible []models.Stage) StagePosition {
	if i := indexOf(f, visible); i >= 0 {
		return AtStage(visible[i].ID)
	}
	return AllStages()
}

// indexOf returns the index of the current stage in visible, -1 for "All Stages".
func indexOf(f FilterState, visible []models.Stage) int {
	if f.SelectedStageID != nil {
		for i, s := range visible {
			if !s.Synthetic && s.ID == *f.SelectedStageID {
				return i
			}
		}
		return -1
	}
	if f.SelectedStatus != nil {
		for i, s := range visible {
			if s.Synthetic && s.MappedStatus == *f.SelectedStatus {
				return i
			}
		}
	}
	return -1
}

// selectVisible selects stage i of visible; i == -1 selects "All Stages".
// Synthetic stages select by status since their ids mean nothing upstream.
func selectVisible(f FilterState, visible []models.Stage, i int) FilterState {
	if i < 0 {
		return f.SelectStage(nil, "")
	}
	st := visible[i]
	if st.Synthetic {
		return f.SelectStage(nil, string(st.MappedStatus))
	}
	return f.SelectStage(intPtr(st.ID), string(st.MappedStatus))
}

// NextStage walks All Stages -> stage[0] -> ... -> stage[n-1] -> All Stages.
// moved is false when there is nothing to walk.
func NextStage(f FilterState, stages []models.Stage) (next FilterState, moved bool) {
	visible := f.VisibleStages(stages)
	if len(visible) == 0 {
		return f, false
	}
	i := indexOf(f, visible)
	if i == len(visible)-1 {
		return selectVisible(f, visible, -1), true
	}
	return selectVisible(f, visible, i+1), true
}

// PrevStage is NextStage in reverse.
func PrevStage(f FilterState, stages []models.Stage) (next FilterState, moved bool) {
	visible := f.VisibleStages(stages)
	if len(visible) == 0 {
		return f, false
	}
	i := indexOf(f, visible)
	if i < 0 {
		return selectVisible(f, visible, len(visible)-1), true
	}
	return selectVisible(f, visible, i-1), true
}

// NextPipeline moves to the following pipeline, wrapping around.
func NextPipeline(f FilterState, stages []models.Stage, pipelines []models.Pipeline) (FilterState, bool) {
	return stepPipeline(f, stages, pipelines, 1)
}

func PrevPipeline(f FilterState, stages []models.Stage, pipelines []models.Pipeline) (FilterState, bool) {
	return stepPipeline(f, stages, pipelines, -1)
}

func stepPipeline(f FilterState, stages []models.Stage, pipelines []models.Pipeline, step int) (FilterState, bool) {
	n := len(pipelines)
	if n <= 1 {
		return f, false
	}
	current := -1
	if id := f.CurrentPipelineID(stages); id != nil {
		for i, p := range pipelines {
			if p.ID == *id {
				current = i
				break
			}
		}
	}

	var target int
	switch {
	case current >= 0:
		target = (current + step + n) % n
	case step > 0:
		target = 0
	default:
		target = n - 1
	}
	return f.SelectPipeline(pipelines[target].ID), true
}
