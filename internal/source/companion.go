package source

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
	"gopkg.in/yaml.v3"
)

// MinMotivationChars is the shortest quoted motivation kept as a canonical passage
const MinMotivationChars = 15

type companionEntry struct {
	Quarter    string  `json:"quarter"`
	Amount     float64 `json:"amount"`
	Category   *string `json:"category"`
	Exogeneity *string `json:"exogeneity"`
}

type companionShock struct {
	ActName             string           `json:"act_name"`
	DateSigned          string           `json:"date_signed"`
	StandardEntries     []companionEntry `json:"standard_entries"`
	RetroactiveEntries  []companionEntry `json:"retroactive_entries"`
	PresentValueEntries []companionEntry `json:"present_value_entries"`
}

type companionLabel struct {
	ActName    string `json:"act_name"`
	Exogeneity string `json:"exogeneity"`
	Category   string `json:"category"`
	Motivation string `json:"motivation"`
	Source     string `json:"source"`
	Date       string `json:"date"`
}

// KeywordOverride adds matcher hints to an act, keyed by act name or event ID
type KeywordOverride struct {
	KeywordSets [][]string `yaml:"keyword_sets"`
	Identifiers []string   `yaml:"identifiers"`
}

// LoadCompanion builds events from the parsed companion pair
// (parsed_shocks.json, parsed_labels.json) and an optional keyword YAML.
// Standard quarterly entries become Timing; quoted motivations become
// canonical passages.
func LoadCompanion(shocksPath, labelsPath, keywordsPath string) ([]model.Event, error) {
	var shocks []companionShock
	if err := readJSON(shocksPath, &shocks); err != nil {
		return nil, err
	}
	var labels []companionLabel
	if labelsPath != "" {
		if err := readJSON(labelsPath, &labels); err != nil {
			return nil, err
		}
	}
	overrides := map[string]KeywordOverride{}
	if keywordsPath != "" {
		data, err := os.ReadFile(keywordsPath)
		if err != nil {
			return nil, fmt.Errorf("read keywords: %w", err)
		}
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return nil, fmt.Errorf("parse keywords %s: %w", keywordsPath, err)
		}
	}

	passages := make(map[string][]string)
	seenPassage := make(map[string]map[string]bool)
	for _, l := range labels {
		quote := strings.Join(strings.Fields(l.Motivation), " ")
		if len(quote) < MinMotivationChars {
			continue
		}
		if seenPassage[l.ActName] == nil {
			seenPassage[l.ActName] = make(map[string]bool)
		}
		if seenPassage[l.ActName][quote] {
			continue
		}
		seenPassage[l.ActName][quote] = true
		passages[l.ActName] = append(passages[l.ActName], quote)
	}

	events := make([]model.Event, 0, len(shocks))
	usedIDs := make(map[string]bool, len(shocks))
	for i, s := range shocks {
		name := strings.TrimSpace(s.ActName)
		if name == "" {
			return nil, &model.StructuralError{Path: fmt.Sprintf("shocks[%d].act_name", i), Reason: "missing"}
		}

		ev := model.Event{
			Name:              name,
			DateSigned:        s.DateSigned,
			Year:              yearOf(s.DateSigned),
			CanonicalPassages: passages[s.ActName],
		}
		ev.ID = uniqueID(slugify(name), ev.Year, usedIDs)

		for _, e := range s.StandardEntries {
			q, ok := model.CanonicalQuarter(e.Quarter)
			if !ok {
				return nil, &model.StructuralError{
					Path:   fmt.Sprintf("shocks[%d].standard_entries", i),
					Reason: fmt.Sprintf("invalid quarter %q", e.Quarter),
				}
			}
			ev.Timing = append(ev.Timing, model.TimingEntry{
				Quarter:    q,
				Amount:     e.Amount,
				Category:   deref(e.Category),
				Exogeneity: deref(e.Exogeneity),
			})
		}

		entries := s.StandardEntries
		if len(entries) == 0 {
			entries = s.RetroactiveEntries
		}
		ev.CategoryLabel, ev.Exogeneity = primaryClassification(entries)

		if o, ok := overrides[name]; ok {
			ev.KeywordSets, ev.Identifiers = o.KeywordSets, o.Identifiers
		} else if o, ok := overrides[ev.ID]; ok {
			ev.KeywordSets, ev.Identifiers = o.KeywordSets, o.Identifiers
		}

		events = append(events, ev)
	}

	if err := NormalizeEvents(events); err != nil {
		return nil, err
	}
	return events, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// primaryClassification returns the first fully classified entry's category
func primaryClassification(entries []companionEntry) (category, exogeneity string) {
	for _, e := range entries {
		if deref(e.Category) != "" && deref(e.Exogeneity) != "" {
			return *e.Category, *e.Exogeneity
		}
	}
	return "", ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func uniqueID(base string, year int, used map[string]bool) string {
	id := base
	if used[id] {
		id = fmt.Sprintf("%s-%d", base, year)
	}
	for n := 2; used[id]; n++ {
		id = fmt.Sprintf("%s-%d-%d", base, year, n)
	}
	used[id] = true
	return id
}
