package prompt

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// HandlerFunc drives a programmatic page. It should compute the page's
// content from state first, then branch on t.Fired().
type HandlerFunc func(ctx context.Context, t *Turn) error

// PageKind distinguishes declarative pages from code-driven ones.
type PageKind int

const (
	PageProgrammatic PageKind = iota
	PageStatic
)

// Page is one step of a wizard. Pages are immutable once registered.
type Page struct {
	Name    string
	Kind    PageKind
	Handler HandlerFunc

	// Static pages only.
	Static      *Content
	SelectID    string
	Transitions map[string]string // selection value -> page
	Links       map[string]string // button id -> page
}

type staticPageDoc struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Color       int    `yaml:"color"`
	Select      *struct {
		ID          string `yaml:"id"`
		Placeholder string `yaml:"placeholder"`
		Options     []struct {
			Option `yaml:",inline"`
			Next   string `yaml:"next"`
		} `yaml:"options"`
	} `yaml:"select"`
	Buttons []struct {
		ID    string `yaml:"id"`
		Label string `yaml:"label"`
		Style int    `yaml:"style"`
		Next  string `yaml:"next"`
	} `yaml:"buttons"`
}

// LoadStaticPages parses a YAML list of static page definitions.
func LoadStaticPages(r io.Reader) ([]*Page, error) {
	var docs []staticPageDoc
	if err := yaml.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode static pages: %w", err)
	}

	pages := make([]*Page, 0, len(docs))
	for _, d := range docs {
		if d.Name == "" {
			return nil, fmt.Errorf("static page without a name")
		}
		p := &Page{
			Name:        d.Name,
			Kind:        PageStatic,
			Static:      &Content{Title: d.Title, Description: d.Description, Color: d.Color},
			Transitions: map[string]string{},
			Links:       map[string]string{},
		}
		if s := d.Select; s != nil {
			if s.ID == "" || len(s.Options) == 0 {
				return nil, fmt.Errorf("page %s: select needs an id and options", d.Name)
			}
			opts := make([]Option, 0, len(s.Options))
			for _, o := range s.Options {
				if o.Next == "" {
					return nil, fmt.Errorf("page %s: option %s has no next page", d.Name, o.Value)
				}
				opts = append(opts, o.Option)
				p.Transitions[o.Value] = o.Next
			}
			p.SelectID = s.ID
			p.Static.Elements = append(p.Static.Elements, Select(s.ID, s.Placeholder, 1, 1, opts...))
		}
		for _, b := range d.Buttons {
			if b.ID == "" || b.Next == "" {
				return nil, fmt.Errorf("page %s: button needs an id and a next page", d.Name)
			}
			p.Static.Elements = append(p.Static.Elements, Button(b.ID, b.Label, b.Style))
			p.Links[b.ID] = b.Next
		}
		pages = append(pages, p)
	}
	return pages, nil
}
