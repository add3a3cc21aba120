package models

import "strings"

// LeadStatus: нормализованный статус лида (mapped_status стадии).
type LeadStatus string

const (
	LeadStatusNew        LeadStatus = "NEW"
	LeadStatusInProgress LeadStatus = "IN_PROGRESS"
	LeadStatusClosed     LeadStatus = "CLOSED"
)

var leadStatusAliases = map[string]LeadStatus{
	"NEW":         LeadStatusNew,
	"IN_PROGRESS": LeadStatusInProgress,
	"INPROGRESS":  LeadStatusInProgress,
	"CLOSED":      LeadStatusClosed,
}

// ParseLeadStatus приводит строку к LeadStatus: регистр, "-" и пробелы не важны.
func ParseLeadStatus(s string) (LeadStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	st, ok := leadStatusAliases[key]
	return st, ok
}

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusInProgress, LeadStatusClosed:
		return true
	}
	return false
}

type Pipeline struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Sort   int     `json:"sort"`
	IsMain bool    `json:"isMain"`
	Stages []Stage `json:"stages,omitempty"`
}

type Stage struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	MappedStatus LeadStatus `json:"mappedStatus,omitempty"`
	Color        string     `json:"color,omitempty"`
	PipelineID   int        `json:"pipelineId"`
	PipelineName string     `json:"pipelineName,omitempty"`
	Sort         int        `json:"sort"`
	Synthetic    bool       `json:"synthetic,omitempty"` // fallback-стадия, id не из AMO
}

// RawPipeline: запись воронки как она приходит по API (поля могут отсутствовать).
type RawPipeline struct {
	ID     *int       `json:"id"`
	Name   *string    `json:"name"`
	Sort   int        `json:"sort"`
	IsMain bool       `json:"isMain"`
	Stages []RawStage `json:"stages"`
}

type RawStage struct {
	ID           *int    `json:"id"`
	PipelineID   *int    `json:"pipelineId"`
	Name         *string `json:"name"`
	Sort         int     `json:"sort"`
	Color        *string `json:"color"`
	MappedStatus *string `json:"mappedStatus"`
}

// FilterState: выбор на экране CRM. Нулевое значение = "все стадии", фильтр выключен.
type FilterState struct {
	SelectedPipelineID *int        `json:"selectedPipelineId"`
	SelectedStageID    *int        `json:"selectedStageId"`
	SelectedStatus     *LeadStatus `json:"selectedStatus"`
	Active             bool        `json:"active"`
}
