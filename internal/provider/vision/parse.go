package vision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON parses a model response that should be JSON but may arrive
// wrapped in markdown code fences or prose.
func decodeJSON(text string, out interface{}) error {
	cleaned := stripFences(text)
	start := strings.IndexAny(cleaned, "[{")
	if start < 0 {
		return fmt.Errorf("no JSON found in model response")
	}
	var end int
	if cleaned[start] == '[' {
		end = strings.LastIndex(cleaned, "]")
	} else {
		end = strings.LastIndex(cleaned, "}")
	}
	if end <= start {
		return fmt.Errorf("unterminated JSON in model response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		if idx := strings.Index(t, "\n"); idx >= 0 {
			t = t[idx+1:]
		}
		t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	}
	return strings.TrimSpace(t)
}

// splitEstablishingShot separates the trailing "Establishing shot: Yes/No"
// marker from a photo description.
func splitEstablishingShot(text string) (string, bool, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", false, fmt.Errorf("model returned empty description")
	}

	establishing := false
	last := strings.ToLower(strings.TrimSpace(lines[len(lines)-1]))
	switch {
	case strings.HasPrefix(last, "establishing shot: yes"):
		establishing = true
		lines = lines[:len(lines)-1]
	case strings.HasPrefix(last, "establishing shot: no"):
		lines = lines[:len(lines)-1]
	}

	desc := strings.TrimSpace(strings.Join(lines, "\n"))
	if desc == "" {
		return "", false, fmt.Errorf("model returned marker without description")
	}
	return desc, establishing, nil
}

// mergeGroups folds duplicate group names together, preserving first-seen
// order, since the model occasionally emits the same scene twice.
func mergeGroups(groups []Group) []Group {
	index := make(map[string]int)
	var merged []Group
	for _, g := range groups {
		if i, ok := index[g.GroupName]; ok {
			merged[i].Images = append(merged[i].Images, g.Images...)
			continue
		}
		index[g.GroupName] = len(merged)
		merged = append(merged, Group{GroupName: g.GroupName, Images: g.Images})
	}
	return merged
}
