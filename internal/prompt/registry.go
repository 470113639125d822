package prompt

import (
	"fmt"
	"sync"
)

// Scope decides what a wizard's session is keyed on.
type Scope int

const (
	// ScopeMessage keys the session on the wizard's message.
	ScopeMessage Scope = iota
	// ScopeUser keys the session on the author; one live session per user.
	ScopeUser
)

// Wizard is an ordered set of pages entered from a command.
type Wizard struct {
	Name   string
	Schema Schema
	Scope  Scope

	pages []*Page
	index map[string]int
}

// NewWizard creates an empty wizard.
func NewWizard(name string, schema Schema) *Wizard {
	return &Wizard{Name: name, Schema: schema, index: map[string]int{}}
}

// Page appends a programmatic page.
func (w *Wizard) Page(name string, h HandlerFunc) *Wizard {
	return w.Add(&Page{Name: name, Kind: PageProgrammatic, Handler: h})
}

// Add appends pages in navigation order. Duplicate names panic: wizards are
// assembled at startup.
func (w *Wizard) Add(pages ...*Page) *Wizard {
	for _, p := range pages {
		if _, dup := w.index[p.Name]; dup {
			panic(fmt.Sprintf("prompt: wizard %s: duplicate page %s", w.Name, p.Name))
		}
		w.index[p.Name] = len(w.pages)
		w.pages = append(w.pages, p)
	}
	return w
}

// Pages returns the page names in order.
func (w *Wizard) Pages() []string {
	out := make([]string, len(w.pages))
	for i, p := range w.pages {
		out[i] = p.Name
	}
	return out
}

func (w *Wizard) page(i int) (*Page, bool) {
	if i < 0 || i >= len(w.pages) {
		return nil, false
	}
	return w.pages[i], true
}

func (w *Wizard) lookup(name string) (int, bool) {
	i, ok := w.index[name]
	return i, ok
}

func (w *Wizard) validate() error {
	if len(w.pages) == 0 {
		return fmt.Errorf("wizard %s has no pages", w.Name)
	}
	for _, p := range w.pages {
		switch p.Kind {
		case PageProgrammatic:
			if p.Handler == nil {
				return fmt.Errorf("wizard %s: page %s has no handler", w.Name, p.Name)
			}
		case PageStatic:
			if p.Static == nil {
				return fmt.Errorf("wizard %s: page %s has no content", w.Name, p.Name)
			}
			for _, targets := range []map[string]string{p.Transitions, p.Links} {
				for _, target := range targets {
					if _, ok := w.index[target]; !ok {
						return fmt.Errorf("wizard %s: page %s links to unknown page %s", w.Name, p.Name, target)
					}
				}
			}
		}
	}
	return nil
}

// Registry holds the wizards the dispatcher can resume.
type Registry struct {
	mu      sync.RWMutex
	wizards map[string]*Wizard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{wizards: map[string]*Wizard{}}
}

// Register validates and adds w.
func (r *Registry) Register(w *Wizard) error {
	if err := w.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.wizards[w.Name]; dup {
		return fmt.Errorf("wizard %s already registered", w.Name)
	}
	r.wizards[w.Name] = w
	return nil
}

// Lookup finds a wizard by name.
func (r *Registry) Lookup(name string) (*Wizard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wizards[name]
	return w, ok
}
