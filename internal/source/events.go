package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
	"gopkg.in/yaml.v3"
)

// LoadEvents reads an events table from YAML or JSON. The file holds either
// a list of events or an object with an "events" list.
func LoadEvents(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	var events []model.Event
	if strings.EqualFold(filepath.Ext(path), ".json") {
		events, err = decodeEventsJSON(data)
	} else {
		events, err = decodeEventsYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse events %s: %w", path, err)
	}

	if err := NormalizeEvents(events); err != nil {
		return nil, err
	}
	return events, nil
}

func decodeEventsJSON(data []byte) ([]model.Event, error) {
	var list []model.Event
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Events []model.Event `json:"events"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Events, nil
}

func decodeEventsYAML(data []byte) ([]model.Event, error) {
	var list []model.Event
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Events []model.Event `yaml:"events"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Events, nil
}

// NormalizeEvents validates events in place: IDs are required and unique,
// timing quarters are rewritten to YYYYQn, and Year is filled from DateSigned.
func NormalizeEvents(events []model.Event) error {
	seen := make(map[string]bool, len(events))
	for i := range events {
		ev := &events[i]
		path := fmt.Sprintf("events[%d]", i)

		ev.ID = strings.TrimSpace(ev.ID)
		if ev.ID == "" {
			return &model.StructuralError{Path: path + ".event_id", Reason: "missing"}
		}
		if seen[ev.ID] {
			return &model.StructuralError{Path: path + ".event_id", Reason: fmt.Sprintf("duplicate id %q", ev.ID)}
		}
		seen[ev.ID] = true

		if strings.TrimSpace(ev.Name) == "" {
			return &model.StructuralError{Path: path + ".name", Reason: "missing"}
		}
		if ev.Year == 0 {
			ev.Year = yearOf(ev.DateSigned)
		}

		for j := range ev.Timing {
			q, ok := model.CanonicalQuarter(ev.Timing[j].Quarter)
			if !ok {
				return &model.StructuralError{
					Path:   fmt.Sprintf("%s.timing[%d].quarter", path, j),
					Reason: fmt.Sprintf("invalid quarter %q", ev.Timing[j].Quarter),
				}
			}
			ev.Timing[j].Quarter = q
		}
	}
	return nil
}

// yearOf returns the year of a YYYY-MM-DD date, or 0
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	var y int
	if _, err := fmt.Sscanf(date[:4], "%d", &y); err != nil {
		return 0
	}
	return y
}
