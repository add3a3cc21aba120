package models

import "time"

type Lead struct {
	ID                string     `json:"id"`
	Name              string     `json:"guestName,omitempty"`
	GuestPhone        string     `json:"guestPhone,omitempty"`
	GuestEmail        string     `json:"guestEmail,omitempty"`
	Price             *float64   `json:"price,omitempty"`
	Status            LeadStatus `json:"status"`
	StatusName        string     `json:"statusName,omitempty"` // человекочитаемое имя стадии
	PipelineID        *int       `json:"pipelineId,omitempty"`
	StageID           *int       `json:"stageId,omitempty"`
	ResponsibleUserID *int       `json:"responsibleUserId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type LeadsPage struct {
	Data       []Lead `json:"data"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}

// LeadFilter: параметры выборки лидов в репозитории.
type LeadFilter struct {
	Status            *LeadStatus
	PipelineID        *int
	StageID           *int
	ResponsibleUserID *int
}

type CrmStats struct {
	NewLeads    int     `json:"newLeads"`    // созданы сегодня
	TotalLeads  int     `json:"totalLeads"`  // всего
	ActiveDeals int     `json:"activeDeals"` // IN_PROGRESS
	TotalAmount float64 `json:"totalAmount"` // сумма price
}
