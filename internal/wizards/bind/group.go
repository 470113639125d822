package bind

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
)

type rankPageText struct {
	title       string
	description string
	modalTitle  string
}

var rankPages = map[string]rankPageText{
	"exact_match": {
		title: "Bind Group Rank",
		description: "Please select one group rank and a corresponding Discord role to give. " +
			"No existing Discord role? No problem, just click `Create a new role`.",
		modalTitle: "Select a group rank.",
	},
	"gte": {
		title: "Bind Group Rank And Above",
		description: "Please choose the **lowest rank** for this bind. " +
			"Everyone with this rank **and above** will be given this role.",
		modalTitle: "Select a minimum group rank.",
	},
	"lte": {
		title: "Bind Group Rank And Below",
		description: "Please choose the **highest** group rank to give for this bind along with a corresponding Discord role to give. " +
			"Everyone with this group rank **and below** will receive that role. " +
			"No existing Discord role? No problem, just click `Create a new role`.",
		modalTitle: "Select a maximum group rank.",
	},
}

func firstValue(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// storeNewRole records the role name submitted through the new role modal.
func storeNewRole(t *prompt.Turn) (string, error) {
	name := strings.TrimSpace(t.Submitted("role_name"))
	if name == "" {
		return "", prompt.Reject("Please give the new role a name.")
	}
	if err := t.Save(keyNewRole, name); err != nil {
		return "", err
	}
	t.Clear(compDiscordRole)
	return name, nil
}

// roleElements are the role picking controls shared by every bind page.
func roleElements(t *prompt.Turn) []prompt.Element {
	_, newRole := chosenRoles(t)
	toggle := prompt.Button(compNewRole, "Create a new role", 0)
	if newRole != "" {
		toggle = prompt.Button(compExistingRole, "Use an existing role", 0)
	}
	return []prompt.Element{
		prompt.RoleSelect(compDiscordRole, "Choose a Discord role", 1, 5).DisabledIf(newRole != ""),
		toggle,
	}
}

// bindRankAndRole handles the exact, at-least and at-most rank criteria.
func (s *Service) bindRankAndRole(ctx context.Context, t *prompt.Turn) error {
	_, groupID, err := target(t)
	if err != nil {
		return err
	}
	choice := firstValue(t.Values(compCriteria))
	text, ok := rankPages[choice]
	if !ok {
		return fmt.Errorf("%w: no rank criteria chosen", prompt.ErrSessionExpired)
	}

	var note string
	switch t.Fired() {
	case "", compGroupRank, compDiscordRole:
	case compNewRole:
		if !t.IsModalSubmit() {
			t.OpenModal(newRoleModal())
			return nil
		}
		name, err := storeNewRole(t)
		if err != nil {
			return err
		}
		note = fmt.Sprintf("The Discord role name `%s` has been stored for this bind.", name)
	case compExistingRole:
		t.Clear(keyNewRole)
	case compRankModal:
		if !t.IsModalSubmit() {
			t.OpenModal(rankModal(text.modalTitle, rankInput("rank_input", "Rank ID Input")))
			return nil
		}
		g, err := s.roblox.Group(ctx, groupID)
		if err != nil {
			return err
		}
		rank, ok := matchRank(g, t.Submitted("rank_input"))
		if !ok {
			t.Followup("That ID does not match a group rank in your roblox group! Please try again.", true)
			return nil
		}
		if err := saveValues(t, compGroupRank, strconv.Itoa(rank)); err != nil {
			return err
		}
		note = fmt.Sprintf("The rank ID `%d` has been stored for this bind.", rank)
	default:
		return t.Unknown()
	}

	if rank, err := strconv.Atoi(firstValue(t.Values(compGroupRank))); err == nil {
		criteria := domain.GroupCriteria{}
		switch choice {
		case "gte":
			criteria.Min = &rank
		case "lte":
			criteria.Max = &rank
		default:
			criteria.Roleset = &rank
		}
		b := domain.PendingBinding{Criteria: domain.BindCriteria{Type: domain.KindGroup, ID: groupID, Group: &criteria}}
		if b, ok := withRoles(t, b); ok {
			return addPending(t, b)
		}
	}

	if f := t.Fired(); f == compGroupRank || f == compDiscordRole {
		t.Ack()
		return nil
	}

	g, err := s.roblox.Group(ctx, groupID)
	if err != nil {
		return err
	}
	elements := roleElements(t)
	if usesRankModal(g) {
		elements = append(elements, prompt.Button(compRankModal, "Select a group rank", 0))
	} else {
		rankSelect := prompt.Select(compGroupRank, "Choose a group rank", 1, 1, rankOptions(g)...)
		elements = append([]prompt.Element{elements[0], rankSelect}, elements[1:]...)
	}
	t.Render(prompt.Content{
		Title:       text.title,
		Description: text.description,
		Elements:    elements,
		Footer:      footer(domain.KindGroup, s.entityName(ctx, t, domain.KindGroup, groupID)),
	})
	if note != "" {
		t.Followup(note, true)
	}
	return nil
}

// bindRange binds every rank between two rolesets.
func (s *Service) bindRange(ctx context.Context, t *prompt.Turn) error {
	_, groupID, err := target(t)
	if err != nil {
		return err
	}

	var note string
	switch t.Fired() {
	case "", compGroupRank, compDiscordRole:
	case compNewRole:
		if !t.IsModalSubmit() {
			t.OpenModal(newRoleModal())
			return nil
		}
		name, err := storeNewRole(t)
		if err != nil {
			return err
		}
		note = fmt.Sprintf("The Discord role name `%s` has been stored for this bind.", name)
	case compExistingRole:
		t.Clear(keyNewRole)
	case compRankModal:
		if !t.IsModalSubmit() {
			t.OpenModal(rankModal("Input group rank range",
				rankInput("min_rank_input", "Minimum Rank Input"),
				rankInput("max_rank_input", "Maximum Rank Input"),
			))
			return nil
		}
		g, err := s.roblox.Group(ctx, groupID)
		if err != nil {
			return err
		}
		lo, okLo := matchRank(g, t.Submitted("min_rank_input"))
		hi, okHi := matchRank(g, t.Submitted("max_rank_input"))
		if !okLo || !okHi {
			t.Followup("One of the given IDs does not match a group rank in your roblox group! Please try again.", true)
			return nil
		}
		if lo == hi {
			t.Followup("Those two group ranks are the same! Please make sure you are inputting two different group ranks.", true)
			return nil
		}
		if err := saveValues(t, compGroupRank, strconv.Itoa(lo), strconv.Itoa(hi)); err != nil {
			return err
		}
		note = fmt.Sprintf("The rank IDs `%d` and `%d` have been stored for this bind.", lo, hi)
	default:
		return t.Unknown()
	}

	if ranks, ok := rankPair(t.Values(compGroupRank)); ok {
		b := domain.PendingBinding{Criteria: domain.BindCriteria{
			Type:  domain.KindGroup,
			ID:    groupID,
			Group: &domain.GroupCriteria{Min: &ranks[0], Max: &ranks[1]},
		}}
		if b, ok := withRoles(t, b); ok {
			return addPending(t, b)
		}
	}

	if f := t.Fired(); f == compGroupRank || f == compDiscordRole {
		t.Ack()
		return nil
	}

	g, err := s.roblox.Group(ctx, groupID)
	if err != nil {
		return err
	}
	elements := roleElements(t)
	if usesRankModal(g) {
		elements = append(elements, prompt.Button(compRankModal, "Select group ranks", 0))
	} else {
		rankSelect := prompt.Select(compGroupRank, "Choose two group ranks", 2, 2, rankOptions(g)...)
		elements = append([]prompt.Element{elements[0], rankSelect}, elements[1:]...)
	}
	t.Render(prompt.Content{
		Title: "Bind Group Range",
		Description: "Please select two group ranks and a corresponding Discord role to give. " +
			"No existing Discord role? No problem, just click `Create a new role`.",
		Elements: elements,
		Footer:   footer(domain.KindGroup, s.entityName(ctx, t, domain.KindGroup, groupID)),
	})
	if note != "" {
		t.Followup(note, true)
	}
	return nil
}

// rankPair returns two distinct ranks in ascending order.
func rankPair(vals []string) ([2]int, bool) {
	if len(vals) != 2 {
		return [2]int{}, false
	}
	ranks := make([]int, 2)
	for i, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			return [2]int{}, false
		}
		ranks[i] = n
	}
	sort.Ints(ranks)
	if ranks[0] == ranks[1] {
		return [2]int{}, false
	}
	return [2]int{ranks[0], ranks[1]}, true
}

// bindRole picks the roles for membership, guest and ownership binds.
func (s *Service) bindRole(ctx context.Context, t *prompt.Turn) error {
	kind, id, err := target(t)
	if err != nil {
		return err
	}

	criteria := domain.BindCriteria{Type: kind, ID: id}
	audience := fmt.Sprintf("users who own this %s", strings.ToLower(kind.Label()))
	if kind == domain.KindGroup {
		switch firstValue(t.Values(compCriteria)) {
		case "in_group":
			criteria.Group = &domain.GroupCriteria{Everyone: true}
			audience = "group members"
		case "not_in_group":
			criteria.Group = &domain.GroupCriteria{Guest: true}
			audience = "users not in the group"
		default:
			return fmt.Errorf("%w: no membership criteria chosen", prompt.ErrSessionExpired)
		}
	}

	switch t.Fired() {
	case "", compDiscordRole:
	case compNewRole:
		if !t.IsModalSubmit() {
			t.OpenModal(newRoleModal())
			return nil
		}
		if _, err := storeNewRole(t); err != nil {
			return err
		}
	default:
		return t.Unknown()
	}

	if t.Fired() != "" {
		if b, ok := withRoles(t, domain.PendingBinding{Criteria: criteria}); ok {
			return addPending(t, b)
		}
		t.Ack()
		return nil
	}

	t.Render(prompt.Content{
		Title: "Bind Discord Role",
		Description: fmt.Sprintf("Please select a Discord role to give to %s. ", audience) +
			"No existing Discord role? No problem, just click `Create a new role`.",
		Elements: roleElements(t),
		Footer:   footer(kind, s.entityName(ctx, t, kind, id)),
	})
	return nil
}
