package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"crmboard/internal/models"
)

type PipelineRepository struct {
	db *sql.DB
}

func NewPipelineRepository(db *sql.DB) *PipelineRepository {
	if db == nil {
		log.Fatalf("received nil database connection")
	}
	return &PipelineRepository{db: db}
}

// List возвращает воронки AMO со стадиями, обе отсортированы по sort, id.
func (r *PipelineRepository) List(ctx context.Context) ([]models.Pipeline, error) {
	const pipelinesQuery = `
		SELECT id, name, sort, is_main
		FROM amo_pipelines
		ORDER BY sort, id
	`
	rows, err := r.db.QueryContext(ctx, pipelinesQuery)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	out := []models.Pipeline{}
	index := map[int]int{}
	for rows.Next() {
		var p models.Pipeline
		if err := rows.Scan(&p.ID, &p.Name, &p.Sort, &p.IsMain); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const stagesQuery = `
		SELECT id, pipeline_id, name, sort, color, mapped_status
		FROM amo_stages
		ORDER BY sort, id
	`
	srows, err := r.db.QueryContext(ctx, stagesQuery)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer srows.Close()

	for srows.Next() {
		var (
			s             models.Stage
			color, mapped sql.NullString
		)
		if err := srows.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Sort, &color, &mapped); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		s.Color = color.String
		s.MappedStatus = models.LeadStatus(mapped.String)
		i, ok := index[s.PipelineID]
		if !ok {
			continue
		}
		s.PipelineName = out[i].Name
		out[i].Stages = append(out[i].Stages, s)
	}
	return out, srows.Err()
}
