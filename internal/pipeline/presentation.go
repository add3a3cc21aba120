package pipeline

import (
	"hash/fnv"
	"strconv"

	"crmboard/internal/models"
)

var stagePalette = []string{
	"#2196F3", "#4CAF50", "#FF9800", "#9C27B0",
	"#F44336", "#00BCD4", "#795548", "#607D8B",
}

// StageColor returns the stage's own color or a stable palette color.
func StageColor(s models.Stage) string {
	if s.Color != "" {
		return s.Color
	}
	key := strconv.Itoa(s.ID)
	if s.Synthetic {
		key = s.Name
	}
	return PaletteColor(key)
}

func PaletteColor(key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return stagePalette[h.Sum32()%uint32(len(stagePalette))]
}

// StageLabel names a stage id; unknown ids are shown as-is because the
// backend, not the client, owns the stage list.
func StageLabel(dir Directory, id int) string {
	if s, ok := dir.Stage(id); ok {
		return s.Name
	}
	return strconv.Itoa(id)
}

type StatusDisplayInfo struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

func StatusDisplay(status models.LeadStatus) StatusDisplayInfo {
	switch status {
	case models.LeadStatusNew:
		return StatusDisplayInfo{Label: "New", Color: "#2196F3"}
	case models.LeadStatusInProgress:
		return StatusDisplayInfo{Label: "In Progress", Color: "#FF9800"}
	case models.LeadStatusClosed:
		return StatusDisplayInfo{Label: "Closed", Color: "#4CAF50"}
	}
	return StatusDisplayInfo{Label: "Unknown", Color: "#9E9E9E"}
}
