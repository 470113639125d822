package bind

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/dispatch"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/prompt/prompttest"
	"github.com/ashureev/rolelink/internal/roblox"
	"github.com/ashureev/rolelink/internal/store"
)

const (
	testGuild   discord.Snowflake = 10
	testAuthor  discord.Snowflake = 20
	wizardMsgID discord.Snowflake = 900
)

func spaceRangers() *roblox.Group {
	return &roblox.Group{
		ID:   1,
		Name: "Space Rangers",
		Rolesets: []roblox.Roleset{
			{ID: 100, Name: "Guest", Rank: 0},
			{ID: 101, Name: "Member", Rank: 10},
			{ID: 102, Name: "Officer", Rank: 50},
			{ID: 103, Name: "Owner", Rank: 255},
		},
	}
}

// bigGroup has more member ranks than a select menu can list.
func bigGroup() *roblox.Group {
	g := &roblox.Group{ID: 2, Name: "Big Group", Rolesets: []roblox.Roleset{{ID: 200, Name: "Guest", Rank: 0}}}
	for rank := 1; rank <= 29; rank++ {
		g.Rolesets = append(g.Rolesets, roblox.Roleset{ID: int64(200 + rank), Name: fmt.Sprintf("Tier %d", rank), Rank: rank})
	}
	g.Rolesets = append(g.Rolesets, roblox.Roleset{ID: 400, Name: "Officer", Rank: 200})
	return g
}

type fakeRoblox struct {
	groups   map[int64]*roblox.Group
	entities map[string]*roblox.Entity
}

func newFakeRoblox() *fakeRoblox {
	return &fakeRoblox{
		groups: map[int64]*roblox.Group{1: spaceRangers(), 2: bigGroup()},
		entities: map[string]*roblox.Entity{
			"badge:9": {Kind: domain.KindBadge, ID: 9, Name: "Speedrunner"},
		},
	}
}

func (f *fakeRoblox) Group(_ context.Context, id int64) (*roblox.Group, error) {
	if g, ok := f.groups[id]; ok {
		return g, nil
	}
	return nil, &domain.EntityNotFoundError{Kind: domain.KindGroup, ID: id}
}

func (f *fakeRoblox) Entity(_ context.Context, kind domain.EntityKind, id int64) (*roblox.Entity, error) {
	if e, ok := f.entities[fmt.Sprintf("%s:%d", kind, id)]; ok {
		return e, nil
	}
	return nil, &domain.EntityNotFoundError{Kind: kind, ID: id}
}

type fakeGuild struct {
	mu      sync.Mutex
	roles   []discord.Role
	created []string
	next    discord.Snowflake
}

func (f *fakeGuild) CreateRole(_ context.Context, _ discord.Snowflake, name string) (*discord.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	role := discord.Role{ID: 7000 + f.next, Name: name}
	f.roles = append(f.roles, role)
	f.created = append(f.created, name)
	return &role, nil
}

func (f *fakeGuild) GuildRoles(_ context.Context, _ discord.Snowflake) ([]discord.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]discord.Role(nil), f.roles...), nil
}

func (f *fakeGuild) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// harness drives the bind commands and wizards through the router the way
// Discord would, tracking the wizard message between interactions.
type harness struct {
	t      *testing.T
	repo   *store.SQLiteStore
	state  *prompt.MemoryStore
	rbx    *fakeRoblox
	guild  *fakeGuild
	router *dispatch.Router

	view discord.MessageData
	msg  *discord.Message
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "bind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:     t,
		repo:  repo,
		state: prompt.NewMemoryStore(),
		rbx:   newFakeRoblox(),
		guild: &fakeGuild{},
	}
	svc := NewService(h.rbx, h.guild, repo, log)
	reg := prompt.NewRegistry()
	require.NoError(t, svc.Register(reg))
	engine := prompt.NewEngine(reg, h.state, prompt.WithLogger(log))
	h.router = dispatch.NewRouter(engine, dispatch.WithAutoDefer(0), dispatch.WithLogger(log))
	require.NoError(t, h.router.Register(svc.Commands()...))
	return h
}

func (h *harness) do(in *discord.Interaction) *prompttest.Host {
	h.t.Helper()
	host := prompttest.NewHost(wizardMsgID)
	require.NoError(h.t, h.router.Dispatch(context.Background(), in, host))
	if shown, ok := host.Shown(); ok && shown.Flags&discord.FlagEphemeral == 0 {
		h.view = shown
		h.msg = prompttest.AsMessage(wizardMsgID, shown)
	}
	return host
}

func subcommand(name string, opts ...discord.CommandOption) discord.CommandOption {
	return discord.CommandOption{Name: name, Type: discord.OptionSubCommand, Options: opts}
}

func intOpt(name string, v int64) discord.CommandOption {
	return discord.CommandOption{Name: name, Type: discord.OptionInteger, Value: json.RawMessage(fmt.Sprint(v))}
}

func strOpt(name, v string) discord.CommandOption {
	raw, _ := json.Marshal(v)
	return discord.CommandOption{Name: name, Type: discord.OptionString, Value: raw}
}

func (h *harness) command(name string, opts ...discord.CommandOption) *prompttest.Host {
	h.t.Helper()
	return h.do(prompttest.Command(name, testGuild, testAuthor, opts...))
}

func (h *harness) customID(component string) string {
	h.t.Helper()
	id, ok := prompttest.FindCustomID(h.view, component)
	require.True(h.t, ok, "component %q not on the current page:\n%s", component, dump(h.view))
	return id
}

func (h *harness) click(component string) *prompttest.Host {
	h.t.Helper()
	return h.do(prompttest.Click(h.msg, h.customID(component), testGuild, testAuthor))
}

func (h *harness) choose(component string, kind discord.ComponentType, values ...string) *prompttest.Host {
	h.t.Helper()
	return h.do(prompttest.Choose(h.msg, h.customID(component), testGuild, testAuthor, kind, values...))
}

// submit answers the modal opened by host.
func (h *harness) submit(host *prompttest.Host, fields map[string]string) *prompttest.Host {
	h.t.Helper()
	resp, ok := host.LastResponse()
	require.True(h.t, ok)
	require.Equal(h.t, discord.ResponseModal, resp.Type)
	modal, ok := resp.Data.(discord.ModalData)
	require.True(h.t, ok)
	return h.do(prompttest.Submit(h.msg, modal.CustomID, testGuild, testAuthor, fields))
}

func followups(host *prompttest.Host) []string {
	out := make([]string, 0, len(host.Followups))
	for _, f := range host.Followups {
		out = append(out, f.Content)
	}
	return out
}

// replyText returns the content of a message callback (type 4).
func replyText(t *testing.T, host *prompttest.Host) string {
	t.Helper()
	resp, ok := host.LastResponse()
	require.True(t, ok)
	require.Equal(t, discord.ResponseChannelMessage, resp.Type)
	msg, ok := resp.Data.(discord.MessageData)
	require.True(t, ok)
	return msg.Content
}

func localID(customID string) string {
	head, _, _ := strings.Cut(customID, prompt.SplitChar)
	return head[strings.LastIndex(head, ":")+1:]
}

// dump renders a message as stable text for golden files and failure output.
func dump(msg discord.MessageData) []byte {
	var b strings.Builder
	if msg.Content != "" {
		fmt.Fprintf(&b, "content: %s\n", msg.Content)
	}
	for _, e := range msg.Embeds {
		fmt.Fprintf(&b, "title: %s\n", e.Title)
		fmt.Fprintf(&b, "description: %s\n", e.Description)
		for _, f := range e.Fields {
			inline := ""
			if f.Inline {
				inline = " (inline)"
			}
			fmt.Fprintf(&b, "field: %s%s\n", f.Name, inline)
			for _, line := range strings.Split(f.Value, "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		}
		if e.Footer != nil {
			fmt.Fprintf(&b, "footer: %s\n", e.Footer.Text)
		}
	}
	for _, row := range msg.Components {
		b.WriteString("row\n")
		for _, c := range row.Components {
			switch c.Type {
			case discord.ComponentButton:
				fmt.Fprintf(&b, "  button %s %q style=%d", localID(c.CustomID), c.Label, c.Style)
			default:
				fmt.Fprintf(&b, "  select %s %q", localID(c.CustomID), c.Placeholder)
				for _, o := range c.Options {
					fmt.Fprintf(&b, " [%s=%s]", o.Value, o.Label)
				}
			}
			if c.Disabled {
				b.WriteString(" disabled")
			}
			b.WriteString("\n")
		}
	}
	return []byte(b.String())
}

func allDisabled(msg discord.MessageData) bool {
	for _, row := range msg.Components {
		for _, c := range row.Components {
			if !c.Disabled {
				return false
			}
		}
	}
	return true
}
