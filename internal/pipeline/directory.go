// Package pipeline holds the CRM board state machine: the pipeline/stage
// directory, the filter state, the lead query it produces and the circular
// stage/pipeline navigation. Everything here is pure and has no I/O.
package pipeline

import (
	"strings"

	"crmboard/internal/models"
)

// FallbackPipelineID is the placeholder pipeline the fallback stages belong to.
const FallbackPipelineID = 0

// Directory is the normalized view of a pipelines payload.
type Directory struct {
	Stages    []models.Stage
	Pipelines []models.Pipeline
}

// fallbackStages keep the board usable when no pipeline survives filtering.
func fallbackStages() []models.Stage {
	return []models.Stage{
		{ID: 1, Name: "New", MappedStatus: models.LeadStatusNew, PipelineID: FallbackPipelineID, Synthetic: true},
		{ID: 2, Name: "In Progress", MappedStatus: models.LeadStatusInProgress, PipelineID: FallbackPipelineID, Synthetic: true},
		{ID: 3, Name: "Closed", MappedStatus: models.LeadStatusClosed, PipelineID: FallbackPipelineID, Synthetic: true},
	}
}

// BuildDirectory keeps the pipelines whose name contains one of the allowed
// substrings (case-insensitive, input order) and flattens their stages into
// one list where the first stage with a given id wins. Records without id or
// name are skipped. An empty allow-list keeps every pipeline.
func BuildDirectory(raw []models.RawPipeline, allowed []string) Directory {
	var dir Directory
	seen := make(map[int]struct{})

	for _, rp := range raw {
		if rp.ID == nil || rp.Name == nil || strings.TrimSpace(*rp.Name) == "" {
			continue
		}
		if !nameAllowed(*rp.Name, allowed) {
			continue
		}

		p := models.Pipeline{ID: *rp.ID, Name: *rp.Name, Sort: rp.Sort, IsMain: rp.IsMain}
		for _, rs := range rp.Stages {
			if rs.ID == nil || rs.Name == nil {
				continue
			}
			st := models.Stage{
				ID:           *rs.ID,
				Name:         *rs.Name,
				PipelineID:   p.ID,
				PipelineName: p.Name,
				Sort:         rs.Sort,
			}
			if rs.Color != nil {
				st.Color = *rs.Color
			}
			if rs.MappedStatus != nil {
				if status, ok := models.ParseLeadStatus(*rs.MappedStatus); ok {
					st.MappedStatus = status
				}
			}
			p.Stages = append(p.Stages, st)

			if _, dup := seen[st.ID]; dup {
				continue
			}
			seen[st.ID] = struct{}{}
			dir.Stages = append(dir.Stages, st)
		}
		dir.Pipelines = append(dir.Pipelines, p)
	}

	if len(dir.Pipelines) == 0 && len(dir.Stages) == 0 {
		dir.Stages = fallbackStages()
	}
	return dir
}

func nameAllowed(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(lower, a) {
			return true
		}
	}
	return false
}

// IsFallback reports whether the directory holds only the synthetic stages.
func (d Directory) IsFallback() bool {
	return len(d.Pipelines) == 0 && len(d.Stages) > 0 && d.Stages[0].Synthetic
}

func (d Directory) Pipeline(id int) (models.Pipeline, bool) {
	for _, p := range d.Pipelines {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pipeline{}, false
}

func (d Directory) Stage(id int) (models.Stage, bool) {
	for _, s := range d.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return models.Stage{}, false
}
