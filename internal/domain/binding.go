// Package domain holds the binding model shared by storage, wizards and commands.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxPendingBindings caps the unsaved bindings a wizard session may hold.
const MaxPendingBindings = 5

// GroupCriteria narrows a group binding to a rank predicate.
// Exactly one of Roleset, Min/Max, Everyone, Guest or Dynamic is set.
type GroupCriteria struct {
	Roleset  *int `json:"roleset,omitempty"`
	Min      *int `json:"min,omitempty"`
	Max      *int `json:"max,omitempty"`
	Everyone bool `json:"everyone,omitempty"`
	Guest    bool `json:"guest,omitempty"`
	Dynamic  bool `json:"dynamic_roles,omitempty"`
}

// BindCriteria is the condition a Roblox account must meet for a binding to apply.
type BindCriteria struct {
	Type  EntityKind     `json:"type"`
	ID    int64          `json:"id"`
	Group *GroupCriteria `json:"group,omitempty"`
}

// Validate checks the criteria is well formed.
func (c BindCriteria) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown bind type %q", c.Type)
	}
	if c.ID <= 0 {
		return fmt.Errorf("%s id must be positive", c.Type)
	}
	if c.Type != KindGroup {
		if c.Group != nil {
			return fmt.Errorf("%s bindings take no rank criteria", c.Type)
		}
		return nil
	}
	g := c.Group
	if g == nil {
		return fmt.Errorf("group binding needs a rank criteria")
	}
	set := 0
	if g.Roleset != nil {
		set++
	}
	if g.Min != nil || g.Max != nil {
		set++
	}
	for _, b := range []bool{g.Everyone, g.Guest, g.Dynamic} {
		if b {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("group binding needs exactly one rank criteria, got %d", set)
	}
	if g.Min != nil && g.Max != nil && *g.Min > *g.Max {
		return fmt.Errorf("rank range %d-%d is inverted", *g.Min, *g.Max)
	}
	return nil
}

// Key returns a canonical string for the criteria. Two bindings with the same
// key in one guild conflict.
func (c BindCriteria) Key() string {
	var b strings.Builder
	b.WriteString(string(c.Type))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(c.ID, 10))
	if g := c.Group; g != nil {
		b.WriteByte(':')
		switch {
		case g.Roleset != nil:
			b.WriteString("rank=" + strconv.Itoa(*g.Roleset))
		case g.Min != nil || g.Max != nil:
			var parts []string
			if g.Min != nil {
				parts = append(parts, "min="+strconv.Itoa(*g.Min))
			}
			if g.Max != nil {
				parts = append(parts, "max="+strconv.Itoa(*g.Max))
			}
			b.WriteString(strings.Join(parts, ","))
		case g.Everyone:
			b.WriteString("everyone")
		case g.Guest:
			b.WriteString("guest")
		case g.Dynamic:
			b.WriteString("dynamic")
		}
	}
	return b.String()
}

// Describe renders the criteria for embeds. rankName resolves a rank number to
// its roleset name and may be nil.
func (c BindCriteria) Describe(rankName func(int) string) string {
	name := func(rank int) string {
		if rankName != nil {
			if n := rankName(rank); n != "" {
				return n
			}
		}
		return strconv.Itoa(rank)
	}

	g := c.Group
	if c.Type != KindGroup || g == nil {
		return fmt.Sprintf("People who own this %s", strings.ToLower(c.Type.Label()))
	}
	switch {
	case g.Roleset != nil:
		return fmt.Sprintf("People with the rank **%s**", name(*g.Roleset))
	case g.Min != nil && g.Max != nil:
		return fmt.Sprintf("People with a rank between **%s** and **%s**", name(*g.Min), name(*g.Max))
	case g.Min != nil:
		return fmt.Sprintf("People with a rank greater than or equal to **%s**", name(*g.Min))
	case g.Max != nil:
		return fmt.Sprintf("People with a rank less than or equal to **%s**", name(*g.Max))
	case g.Everyone:
		return "All group members"
	case g.Guest:
		return "People **not** in the group"
	case g.Dynamic:
		return "Every rank gets a role with the same name"
	}
	return "Unknown criteria"
}

// PendingBinding is a binding assembled in a wizard but not yet published.
type PendingBinding struct {
	Roles       []string     `json:"roles,omitempty"`
	NewRoles    []string     `json:"new_roles,omitempty"`
	RemoveRoles []string     `json:"remove_roles,omitempty"`
	Criteria    BindCriteria `json:"criteria"`
}

// RoleMentions renders the roles (existing and to be created) for display.
func (p PendingBinding) RoleMentions() string {
	out := make([]string, 0, len(p.Roles)+len(p.NewRoles))
	for _, id := range p.Roles {
		out = append(out, "<@&"+id+">")
	}
	for _, name := range p.NewRoles {
		out = append(out, "`"+name+"` (new)")
	}
	if len(out) == 0 {
		return "no roles"
	}
	return strings.Join(out, ", ")
}

// Binding is a persisted guild binding.
type Binding struct {
	ID          int64
	GuildID     string
	Criteria    BindCriteria
	Roles       []string
	RemoveRoles []string
	CreatedAt   time.Time
}

// BindingFilter narrows ListBindings. Zero fields match everything.
type BindingFilter struct {
	Type     EntityKind
	EntityID int64
}
