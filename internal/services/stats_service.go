package services

import (
	"time"

	"crmboard/internal/models"
)

// ComputeStats: сводка для шапки CRM. "Новые" = созданные сегодня
// (локальная дата now), а не статус NEW.
func ComputeStats(leads []models.Lead, now time.Time) models.CrmStats {
	stats := models.CrmStats{TotalLeads: len(leads)}
	y, m, d := now.Date()

	for _, l := range leads {
		if !l.CreatedAt.IsZero() {
			ly, lm, ld := l.CreatedAt.In(now.Location()).Date()
			if ly == y && lm == m && ld == d {
				stats.NewLeads++
			}
		}
		if l.Status == models.LeadStatusInProgress {
			stats.ActiveDeals++
		}
		if l.Price != nil {
			stats.TotalAmount += *l.Price
		}
	}
	return stats
}
