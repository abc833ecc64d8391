package impact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MaxSteps          = 12
	MaxTitleLen       = 120
	MaxDescriptionLen = 400
)

// Some models spell the key "descreption"; both are accepted.
type planJSON struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Descreption string          `json:"descreption"`
	Steps       json.RawMessage `json:"steps"`
}

type stepJSON struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Descreption string `json:"descreption"`
	Icon        string `json:"icon"`
}

// ParsePlan validates generator output and turns it into an unsaved Impact.
// Steps may come as a list or as an object keyed by their 1-based order;
// either way the orders must run 1..n without gaps.
func ParsePlan(raw []byte) (*Impact, error) {
	var p planJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	title := strings.TrimSpace(p.Title)
	desc := strings.TrimSpace(firstNonEmpty(p.Descreption, p.Description))
	switch {
	case title == "":
		return nil, errors.New("missing title")
	case desc == "":
		return nil, errors.New("missing description")
	}

	steps, err := parseSteps(p.Steps)
	if err != nil {
		return nil, err
	}
	return &Impact{
		Title:       truncate(title, MaxTitleLen),
		Description: truncate(desc, MaxDescriptionLen),
		Steps:       steps,
	}, nil
}

func parseSteps(raw json.RawMessage) ([]Step, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("missing steps")
	}

	byOrder := map[int]json.RawMessage{}
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
		for i, s := range list {
			byOrder[i+1] = s
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
		for k, s := range obj {
			order, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return nil, fmt.Errorf("step key %q is not numeric", k)
			}
			if _, dup := byOrder[order]; dup {
				return nil, fmt.Errorf("duplicate step order %d", order)
			}
			byOrder[order] = s
		}
	default:
		return nil, errors.New("steps must be a list or an object")
	}

	switch {
	case len(byOrder) == 0:
		return nil, errors.New("no steps generated")
	case len(byOrder) > MaxSteps:
		return nil, fmt.Errorf("too many steps: %d", len(byOrder))
	}

	steps := make([]Step, 0, len(byOrder))
	for order, s := range byOrder {
		var sj stepJSON
		if err := json.Unmarshal(s, &sj); err != nil {
			return nil, fmt.Errorf("step %d: %w", order, err)
		}
		title := strings.TrimSpace(sj.Title)
		desc := strings.TrimSpace(firstNonEmpty(sj.Descreption, sj.Description))
		icon := strings.TrimSpace(sj.Icon)
		switch {
		case title == "":
			return nil, fmt.Errorf("step %d: missing title", order)
		case desc == "":
			return nil, fmt.Errorf("step %d: missing description", order)
		case icon == "":
			return nil, fmt.Errorf("step %d: missing icon", order)
		}
		steps = append(steps, Step{
			Order:       order,
			Title:       truncate(title, MaxTitleLen),
			Description: truncate(desc, MaxDescriptionLen),
			Icon:        truncate(icon, MaxTitleLen),
			Unlocked:    order == 1,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	for i, s := range steps {
		if s.Order != i+1 {
			return nil, fmt.Errorf("step orders must run 1..%d", len(steps))
		}
	}
	return steps, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
