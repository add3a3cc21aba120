package pipeline

import "crmboard/internal/models"

// FilterState wraps models.FilterState with its transitions. All methods use
// value receivers and return the next state.
type FilterState struct {
	models.FilterState
}

func intPtr(v int) *int { return &v }

// CurrentPipelineID is the selected pipeline, else the pipeline of the first
// known stage, else nil.
func (f FilterState) CurrentPipelineID(stages []models.Stage) *int {
	if f.SelectedPipelineID != nil {
		return intPtr(*f.SelectedPipelineID)
	}
	if len(stages) > 0 {
		return intPtr(stages[0].PipelineID)
	}
	return nil
}

// VisibleStages returns the stages of the current pipeline in their original order.
func (f FilterState) VisibleStages(stages []models.Stage) []models.Stage {
	current := f.CurrentPipelineID(stages)
	if current == nil {
		return nil
	}
	var out []models.Stage
	for _, s := range stages {
		if s.PipelineID == *current {
			out = append(out, s)
		}
	}
	return out
}

// SelectPipeline always restarts the stage dimension at "All Stages".
func (f FilterState) SelectPipeline(id int) FilterState {
	return FilterState{models.FilterState{
		SelectedPipelineID: intPtr(id),
		Active:             true,
	}}
}

// SelectStage sets the stage (nil = "All Stages"). Without an id the
// statusFallback is kept when it normalizes to a known status.
func (f FilterState) SelectStage(id *int, statusFallback string) FilterState {
	next := f
	next.SelectedStageID = nil
	next.SelectedStatus = nil
	next.Active = true

	if id != nil {
		next.SelectedStageID = intPtr(*id)
		return next
	}
	if status, ok := models.ParseLeadStatus(statusFallback); ok {
		next.SelectedStatus = &status
	}
	return next
}

func (f FilterState) ClearAll() FilterState {
	return FilterState{}
}
