package bind

import (
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"

	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/roblox"
)

// maxSelectOptions is Discord's cap on string select options. Groups with more
// member ranks are picked through a modal instead.
const maxSelectOptions = 25

// matchRank resolves modal input to a rank of g. Numbers must be an existing
// rank; anything else is matched against roleset names, exact (case-folded)
// first and fuzzy second.
func matchRank(g *roblox.Group, input string) (int, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if g.RankName(n) == "" {
			return 0, false
		}
		return n, true
	}

	fold := cases.Fold()
	ranks := g.Rolesets
	names := make([]string, len(ranks))
	want := fold.String(input)
	for i, r := range ranks {
		names[i] = fold.String(r.Name)
		if names[i] == want {
			return r.Rank, true
		}
	}
	matches := fuzzy.Find(want, names)
	if len(matches) == 0 {
		return 0, false
	}
	return ranks[matches[0].Index].Rank, true
}

// rankOptions lists the member ranks of g, highest first.
func rankOptions(g *roblox.Group) []prompt.Option {
	ranks := g.MemberRanks()
	if len(ranks) > maxSelectOptions {
		ranks = ranks[len(ranks)-maxSelectOptions:]
	}
	opts := make([]prompt.Option, 0, len(ranks))
	for i := len(ranks) - 1; i >= 0; i-- {
		r := ranks[i]
		opts = append(opts, prompt.Option{
			Label:       truncate(r.Name, maxOptionLength),
			Value:       strconv.Itoa(r.Rank),
			Description: "Rank " + strconv.Itoa(r.Rank),
		})
	}
	return opts
}

// usesRankModal reports whether g has too many ranks for a select menu.
func usesRankModal(g *roblox.Group) bool {
	return len(g.MemberRanks()) > maxSelectOptions
}

func rankModal(title string, inputs ...prompt.TextInput) prompt.Modal {
	return prompt.Modal{ID: compRankModal, Title: title, Inputs: inputs}
}

func rankInput(id, label string) prompt.TextInput {
	return prompt.TextInput{
		ID:          id,
		Label:       label,
		Placeholder: "Type the name or ID of the rank for this bind.",
		MaxLength:   100,
	}
}

func newRoleModal() prompt.Modal {
	return prompt.Modal{
		ID:    compNewRole,
		Title: "Create a discord role",
		Inputs: []prompt.TextInput{{
			ID:          "role_name",
			Label:       "New role name",
			Placeholder: "Type the name of the role to create on submission.",
			MaxLength:   100,
		}},
	}
}
