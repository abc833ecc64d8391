package impact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan_ObjectSteps(t *testing.T) {
	im, err := ParsePlan([]byte(`{
		"title": "  Greener kitchen ",
		"descreption": "Cut waste at home",
		"steps": {
			"2": {"title": "Compost", "descreption": "Start a bin", "icon": "fa-solid fa-seedling"},
			" 1": {"title": "Audit", "description": "List what you throw away", "icon": "fa-solid fa-list"}
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Greener kitchen", im.Title)
	assert.Equal(t, "Cut waste at home", im.Description)
	require.Len(t, im.Steps, 2)
	assert.Equal(t, Step{Order: 1, Title: "Audit", Description: "List what you throw away", Icon: "fa-solid fa-list", Unlocked: true}, im.Steps[0])
	assert.Equal(t, 2, im.Steps[1].Order)
	assert.False(t, im.Steps[1].Unlocked)
}

func TestParsePlan_ListSteps(t *testing.T) {
	im, err := ParsePlan([]byte(`{"title": "Bike", "description": "Ride more", "steps": [
		{"title": "Check tyres", "description": "Pump them", "icon": "fa-bicycle"},
		{"title": "Plan route", "description": "Avoid traffic", "icon": "fa-map"}
	]}`))
	require.NoError(t, err)
	require.Len(t, im.Steps, 2)
	assert.Equal(t, "Check tyres", im.Steps[0].Title)
	assert.Equal(t, 2, im.Steps[1].Order)
}

func TestParsePlan_Truncates(t *testing.T) {
	long := strings.Repeat("é", MaxDescriptionLen+10)
	im, err := ParsePlan([]byte(`{"title": "` + strings.Repeat("t", MaxTitleLen+5) + `", "description": "` + long + `",
		"steps": [{"title": "a", "description": "` + long + `", "icon": "i"}]}`))
	require.NoError(t, err)
	assert.Len(t, im.Title, MaxTitleLen)
	assert.Equal(t, MaxDescriptionLen, len([]rune(im.Description)))
	assert.Equal(t, MaxDescriptionLen, len([]rune(im.Steps[0].Description)))
}

func TestParsePlan_Rejects(t *testing.T) {
	step := `{"title": "a", "description": "b", "icon": "c"}`
	many := make([]string, MaxSteps+1)
	for i := range many {
		many[i] = step
	}
	cases := map[string]string{
		"not json":        `plan: be green`,
		"no title":        `{"description": "d", "steps": [` + step + `]}`,
		"no description":  `{"title": "t", "steps": [` + step + `]}`,
		"no steps":        `{"title": "t", "description": "d"}`,
		"empty steps":     `{"title": "t", "description": "d", "steps": []}`,
		"scalar steps":    `{"title": "t", "description": "d", "steps": "1. recycle"}`,
		"bad key":         `{"title": "t", "description": "d", "steps": {"one": ` + step + `}}`,
		"duplicate order": `{"title": "t", "description": "d", "steps": {"1": ` + step + `, " 1": ` + step + `}}`,
		"gap":             `{"title": "t", "description": "d", "steps": {"1": ` + step + `, "3": ` + step + `}}`,
		"not from one":    `{"title": "t", "description": "d", "steps": {"2": ` + step + `}}`,
		"step no icon":    `{"title": "t", "description": "d", "steps": [{"title": "a", "description": "b"}]}`,
		"step not object": `{"title": "t", "description": "d", "steps": ["recycle"]}`,
		"too many":        `{"title": "t", "description": "d", "steps": [` + strings.Join(many, ",") + `]}`,
	}
	for name, raw := range cases {
		_, err := ParsePlan([]byte(raw))
		assert.Error(t, err, name)
	}
}
