package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"crmboard/internal/models"
)

// LeadStore: выборка лидов (repositories.LeadRepository).
type LeadStore interface {
	List(ctx context.Context, f models.LeadFilter, limit, offset int) ([]models.Lead, error)
	Count(ctx context.Context, f models.LeadFilter) (int, error)
}

// PipelineStore: справочник воронок (repositories.PipelineRepository).
type PipelineStore interface {
	List(ctx context.Context) ([]models.Pipeline, error)
}

// LeadService отдаёт то же, что CRM API мобильному приложению: страницы лидов и воронки.
type LeadService struct {
	Leads     LeadStore
	Pipelines PipelineStore
}

func NewLeadService(leads LeadStore, pipelines PipelineStore) *LeadService {
	return &LeadService{Leads: leads, Pipelines: pipelines}
}

// ListPage: COUNT и сама страница идут параллельно.
func (s *LeadService) ListPage(ctx context.Context, f models.LeadFilter, page, limit int) (*models.LeadsPage, error) {
	var (
		total int
		leads []models.Lead
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.Leads.Count(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		leads, err = s.Leads.List(gctx, f, limit, (page-1)*limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &models.LeadsPage{
		Data:       leads,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *LeadService) ListPipelines(ctx context.Context) ([]models.Pipeline, error) {
	return s.Pipelines.List(ctx)
}
