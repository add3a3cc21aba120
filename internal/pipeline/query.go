package pipeline

import (
	"net/url"
	"strconv"

	"crmboard/internal/models"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// LeadQuery is the parameter set of GET /leads.
type LeadQuery struct {
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	PipelineID *int               `json:"pipelineId,omitempty"`
	StageID    *int               `json:"stageId,omitempty"`
	Status     *models.LeadStatus `json:"status,omitempty"`
}

// BuildLeadQuery maps a filter state onto the lead listing parameters.
// stageId is strictly more specific than status, so status is dropped when
// both are selected.
func BuildLeadQuery(f FilterState, page, limit int) LeadQuery {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	q := LeadQuery{Page: page, Limit: limit}

	if f.SelectedPipelineID != nil {
		q.PipelineID = intPtr(*f.SelectedPipelineID)
	}
	if f.SelectedStageID != nil {
		q.StageID = intPtr(*f.SelectedStageID)
	} else if f.SelectedStatus != nil && f.SelectedStatus.Valid() {
		status := *f.SelectedStatus
		q.Status = &status
	}
	return q
}

func (q LeadQuery) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.PipelineID != nil {
		v.Set("pipelineId", strconv.Itoa(*q.PipelineID))
	}
	if q.StageID != nil {
		v.Set("stageId", strconv.Itoa(*q.StageID))
	}
	if q.Status != nil {
		v.Set("status", string(*q.Status))
	}
	return v
}

// Filter converts the query into the repository filter of the /leads endpoint.
func (q LeadQuery) Filter() models.LeadFilter {
	return models.LeadFilter{
		Status:     q.Status,
		PipelineID: q.PipelineID,
		StageID:    q.StageID,
	}
}
