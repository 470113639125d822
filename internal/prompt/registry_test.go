package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *Turn) error { return nil }

func TestRegistryRejectsBrokenWizards(t *testing.T) {
	reg := NewRegistry()

	assert.Error(t, reg.Register(NewWizard("empty", nil)))

	w := NewWizard("nohandler", nil).Add(&Page{Name: "a"})
	assert.Error(t, reg.Register(w))

	pages, err := LoadStaticPages(strings.NewReader(`
- name: start
  title: Start
  select:
    id: s
    options:
      - {label: Go, value: go, next: nowhere}
`))
	require.NoError(t, err)
	assert.Error(t, reg.Register(NewWizard("dangling", nil).Add(pages...)))

	ok := NewWizard("ok", nil).Page("a", noop)
	require.NoError(t, reg.Register(ok))
	assert.Error(t, reg.Register(NewWizard("ok", nil).Page("a", noop)))

	got, found := reg.Lookup("ok")
	require.True(t, found)
	assert.Equal(t, []string{"a"}, got.Pages())
}

func TestDuplicatePagePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewWizard("w", nil).Page("a", noop).Page("a", noop)
	})
}

func TestLoadStaticPages(t *testing.T) {
	pages, err := LoadStaticPages(strings.NewReader(counterPages))
	require.NoError(t, err)
	require.Len(t, pages, 1)

	p := pages[0]
	assert.Equal(t, PageStatic, p.Kind)
	assert.Equal(t, "choice", p.SelectID)
	assert.Equal(t, map[string]string{"a": "home", "b": "second"}, p.Transitions)
	assert.Equal(t, map[string]string{"cancel": "home"}, p.Links)
	require.Len(t, p.Static.Elements, 2)
	assert.Equal(t, ElementSelect, p.Static.Elements[0].Kind)
	assert.Len(t, p.Static.Elements[0].Options, 2)

	_, err = LoadStaticPages(strings.NewReader(`
- name: broken
  select:
    id: s
    options:
      - {label: Go, value: go}
`))
	assert.Error(t, err)
}

func TestRenderGroupsButtons(t *testing.T) {
	c := Content{
		Title: "T",
		Elements: []Element{
			Button("a", "A", 0),
			Select("s", "pick", 1, 1, Option{Label: "x", Value: "x"}),
			Button("b", "B", 0).DisabledIf(true),
			Button("c", "C", 0),
		},
	}
	msg, err := render(c, func(component string) (string, error) { return "id-" + component, nil })
	require.NoError(t, err)
	require.Len(t, msg.Components, 3)
	assert.Equal(t, "id-a", msg.Components[0].Components[0].CustomID)
	assert.Equal(t, "id-s", msg.Components[1].Components[0].CustomID)
	assert.Len(t, msg.Components[2].Components, 2)
	assert.True(t, msg.Components[2].Components[0].Disabled)
	assert.False(t, msg.Components[2].Components[1].Disabled)
}

func TestRenderRejectsTooManyRows(t *testing.T) {
	var els []Element
	for i := 0; i < 6; i++ {
		els = append(els, RoleSelect(string(rune('a'+i)), "roles", 1, 1))
	}
	_, err := render(Content{Elements: els}, func(c string) (string, error) { return c, nil })
	assert.ErrorIs(t, err, ErrProtocolViolation)
}
