// Package grouplock implements /grouplock, which restricts a server to the
// members of chosen Roblox groups, and its paginated list view.
package grouplock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/roblox"
	"github.com/ashureev/rolelink/internal/store"
)

// WizardView is the name of the list view wizard.
const WizardView = "glock"

const (
	pageView = "view"

	compPrev = "prev"
	compNext = "next"

	keyPageNumber = "page_number"

	// ItemsPerPage is how many locks one page of the view lists.
	ItemsPerPage = 2

	colorRed = 0xdb2323
)

// Roblox resolves the groups a lock refers to.
type Roblox interface {
	Group(ctx context.Context, id int64) (*roblox.Group, error)
}

// Service owns the grouplock command and view.
type Service struct {
	roblox Roblox
	locks  store.GroupLockRepository
	log    *slog.Logger
}

// NewService creates a grouplock service.
func NewService(rbx Roblox, locks store.GroupLockRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{roblox: rbx, locks: locks, log: log.With("component", "grouplock")}
}

// Register adds the view wizard to reg. Its session is keyed on the user, so
// reopening the view replaces the previous one.
func (s *Service) Register(reg *prompt.Registry) error {
	w := prompt.NewWizard(WizardView, nil).Page(pageView, s.view)
	w.Scope = prompt.ScopeUser
	if err := reg.Register(w); err != nil {
		return fmt.Errorf("register wizard %s: %w", w.Name, err)
	}
	return nil
}

// view pages through the guild's group locks. The list is read fresh on every
// turn; only the page number lives in the session.
func (s *Service) view(ctx context.Context, t *prompt.Turn) error {
	var page int
	if _, err := t.Get(keyPageNumber, &page); err != nil {
		return err
	}
	switch t.Fired() {
	case "":
	case compPrev:
		page--
	case compNext:
		page++
	default:
		return t.Unknown()
	}

	locks, err := s.locks.ListGroupLocks(ctx, t.GuildID().String())
	if err != nil {
		return fmt.Errorf("list group locks: %w", err)
	}
	pages := pageCount(len(locks))
	page = max(0, min(page, pages-1))
	if err := t.Save(keyPageNumber, page); err != nil {
		return err
	}
	t.Render(render(locks, page, pages))
	return nil
}

func pageCount(n int) int {
	return (n + ItemsPerPage - 1) / ItemsPerPage
}

func render(locks []*domain.GroupLock, page, pages int) prompt.Content {
	c := prompt.Content{Title: "Group Lock", Color: colorRed}
	if len(locks) == 0 {
		c.Description = "> You don't have any groups set in your grouplock! Try using `/grouplock add` to add one."
		return c
	}

	c.Description = "Use `/grouplock add` to lock another group, or `/grouplock delete` to remove one."
	c.Footer = fmt.Sprintf("Page %d/%d", page+1, pages)

	lo := page * ItemsPerPage
	hi := min(lo+ItemsPerPage, len(locks))
	entries := make([]string, 0, hi-lo)
	for _, l := range locks[lo:hi] {
		entries = append(entries, describe(l))
	}

	// Two inline columns, the first one taking the odd entry.
	half := (len(entries) + 1) / 2
	divider := strings.Repeat("-", 24)
	for _, col := range [][]string{entries[:half], entries[half:]} {
		if len(col) == 0 {
			continue
		}
		c.Fields = append(c.Fields, discord.EmbedField{Name: divider, Value: strings.Join(col, "\n\n"), Inline: true})
	}
	c.Elements = []prompt.Element{
		prompt.Button(compPrev, "◀", discord.ButtonSecondary).DisabledIf(page <= 0),
		prompt.Button(compNext, "▶", discord.ButtonSecondary).DisabledIf(page+1 >= pages),
	}
	return c
}

func describe(l *domain.GroupLock) string {
	name := l.GroupName
	if name == "" {
		name = "Unknown Group"
	}
	lines := []string{fmt.Sprintf("**%s** (%d)", name, l.GroupID)}
	if l.DMMessage != "" {
		lines = append(lines, fmt.Sprintf("DM Message: `%s`", l.DMMessage))
	}
	if len(l.Rolesets) > 0 {
		ranks := make([]string, len(l.Rolesets))
		for i, r := range l.Rolesets {
			ranks[i] = strconv.Itoa(r)
		}
		lines = append(lines, "Rolesets: "+strings.Join(ranks, ", "))
	}
	lines = append(lines,
		fmt.Sprintf("Verified action: `%s`", l.VerifiedAction.Label()),
		fmt.Sprintf("Unverified action: `%s`", l.UnverifiedAction.Label()),
	)
	return strings.Join(lines, "\n")
}
