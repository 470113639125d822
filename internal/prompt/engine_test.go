package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/prompt/prompttest"
)

const (
	guildID   discord.Snowflake = 10
	authorID  discord.Snowflake = 20
	messageID discord.Snowflake = 500
)

const counterPages = `
- name: pick
  title: Pick one
  select:
    id: choice
    placeholder: Choose a page
    options:
      - label: Home
        value: a
        next: home
      - label: Second
        value: b
        next: second
  buttons:
    - id: cancel
      label: Cancel
      next: home
`

var (
	errBoom       = errors.New("boom")
	counterSchema = Schema{{Name: "seed", Kind: FieldInt}}
)

func counterWizard(t *testing.T) *Wizard {
	t.Helper()
	pages, err := LoadStaticPages(strings.NewReader(counterPages))
	require.NoError(t, err)

	w := NewWizard("counter", counterSchema)
	w.Page("home", homePage)
	w.Add(pages...)
	w.Page("second", secondPage)
	w.Page("spin", func(_ context.Context, t *Turn) error {
		t.GoTo("spin")
		return nil
	})
	return w
}

func homePage(_ context.Context, t *Turn) error {
	var n int
	if _, err := t.Get("count", &n); err != nil {
		return err
	}
	var name string
	if _, err := t.Get("name", &name); err != nil {
		return err
	}
	content := func() Content {
		return Content{
			Title:       "Counter",
			Description: fmt.Sprintf("count=%d seed=%d name=%s", n, t.Identity().Int("seed"), name),
			Elements: []Element{
				Button("inc", "Increment", discord.ButtonPrimary),
				Button("next", "Next", 0),
				Button("name", "Name", 0),
				Button("done", "Done", discord.ButtonSuccess),
				Button("spin", "Spin", 0),
				Button("boom", "Boom", discord.ButtonDanger),
			},
		}
	}

	switch t.Fired() {
	case "":
		t.Render(content())
	case "inc":
		n++
		if err := t.Save("count", n); err != nil {
			return err
		}
		t.Render(content())
	case "next":
		t.Next()
	case "name":
		if !t.IsModalSubmit() {
			t.OpenModal(Modal{Title: "Your name", Inputs: []TextInput{{ID: "name", Label: "Name"}}})
			return nil
		}
		name = t.Submitted("name")
		if err := t.Save("name", name); err != nil {
			return err
		}
		t.Render(content())
	case "done":
		t.Render(content())
		t.Finish()
	case "spin":
		t.GoTo("spin")
	case "boom":
		if err := t.Save("partial", true); err != nil {
			return err
		}
		return errBoom
	default:
		return t.Unknown()
	}
	return nil
}

func secondPage(_ context.Context, t *Turn) error {
	content := Content{Text: "second", Elements: []Element{Button("back", "Back", 0)}}
	switch t.Fired() {
	case "":
		t.Render(content)
	case "back":
		t.Previous()
	default:
		return t.Unknown()
	}
	return nil
}

type harness struct {
	t      *testing.T
	store  StateStore
	mem    *MemoryStore
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, nil)
}

func newHarnessWithStore(t *testing.T, wrap func(StateStore) StateStore) *harness {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(counterWizard(t)))
	mem := NewMemoryStore()
	var store StateStore = mem
	if wrap != nil {
		store = wrap(mem)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{t: t, store: store, mem: mem, engine: NewEngine(reg, store, WithLogger(logger))}
}

func (h *harness) start() discord.MessageData {
	h.t.Helper()
	host := prompttest.NewHost(messageID)
	in := prompttest.Command("counter", guildID, authorID)
	require.NoError(h.t, h.engine.Start(context.Background(), in, NewChannel(host, in), "counter", Field{Name: "seed", Value: "7"}))
	return shown(h.t, host)
}

func (h *harness) send(in *discord.Interaction) *prompttest.Host {
	h.t.Helper()
	host := prompttest.NewHost(messageID)
	require.NoError(h.t, h.engine.Handle(context.Background(), in, NewChannel(host, in)))
	return host
}

func (h *harness) click(on discord.MessageData, component string, user discord.Snowflake) *prompttest.Host {
	h.t.Helper()
	id, ok := prompttest.FindCustomID(on, component)
	require.True(h.t, ok, "component %s not rendered", component)
	return h.send(prompttest.Click(prompttest.AsMessage(messageID, on), id, guildID, user))
}

func (h *harness) state() State {
	h.t.Helper()
	s, err := h.mem.Load(context.Background(), MessageKey("counter", messageID))
	require.NoError(h.t, err)
	return s
}

func shown(t *testing.T, host *prompttest.Host) discord.MessageData {
	t.Helper()
	m, ok := host.Shown()
	require.True(t, ok, "nothing was shown")
	return m
}

func ephemeralReply(t *testing.T, host *prompttest.Host) string {
	t.Helper()
	resp, ok := host.LastResponse()
	require.True(t, ok)
	require.Equal(t, discord.ResponseChannelMessage, resp.Type)
	data, ok := resp.Data.(discord.MessageData)
	require.True(t, ok)
	assert.Equal(t, discord.FlagEphemeral, data.Flags)
	return data.Content
}

func TestStartRendersFirstPage(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	require.Len(t, msg.Embeds, 1)
	assert.Equal(t, "count=0 seed=7 name=", msg.Embeds[0].Description)
	require.Len(t, msg.Components, 2)
	assert.Len(t, msg.Components[0].Components, 5)
	assert.Len(t, msg.Components[1].Components, 1)

	var page string
	ok, err := h.state().Get(keyPage, &page)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "home", page)
}

func TestStartRejectsExtraThatCannotDecode(t *testing.T) {
	h := newHarness(t)
	host := prompttest.NewHost(messageID)
	in := prompttest.Command("counter", guildID, authorID)

	err := h.engine.Start(context.Background(), in, NewChannel(host, in), "counter", Field{Name: "seed", Value: "seven"})
	require.ErrorIs(t, err, ErrMalformedToken)
	assert.Empty(t, host.Responses)
	assert.Empty(t, h.state())
}

func TestClickUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	host := h.click(msg, "inc", authorID)
	resp, _ := host.LastResponse()
	assert.Equal(t, discord.ResponseUpdateMessage, resp.Type)

	msg = shown(t, host)
	assert.Equal(t, "count=1 seed=7 name=", msg.Embeds[0].Description)

	id, ok := prompttest.FindCustomID(msg, "inc")
	require.True(t, ok)
	decoded, err := Decode(id, counterSchema)
	require.NoError(t, err)
	assert.Equal(t, messageID, decoded.MessageID)

	var n int
	_, err = h.state().Get("count", &n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpiredSessionHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	msg := h.start()
	require.NoError(t, h.mem.Delete(context.Background(), MessageKey("counter", messageID)))

	host := h.click(msg, "inc", authorID)
	assert.Equal(t, MsgExpired, ephemeralReply(t, host))
	assert.Empty(t, h.state())
	assert.Empty(t, host.Edits)
}

func TestOnlyAuthorMayDrive(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	host := h.click(msg, "inc", 99)
	assert.Equal(t, MsgNotAuthor, ephemeralReply(t, host))
	assert.False(t, h.state().Has("count"))
}

func TestStaticPageTransitions(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	msg = shown(t, h.click(msg, "next", authorID))
	require.Len(t, msg.Embeds, 1)
	assert.Equal(t, "Pick one", msg.Embeds[0].Title)

	choice, ok := prompttest.FindCustomID(msg, "choice")
	require.True(t, ok)
	host := h.send(prompttest.Choose(prompttest.AsMessage(messageID, msg), choice, guildID, authorID, discord.ComponentStringSelect, "b"))
	second := shown(t, host)
	assert.Equal(t, "second", second.Content)

	var sel struct {
		Values []string `json:"values"`
	}
	_, err := h.state().Get("choice", &sel)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sel.Values)

	back := shown(t, h.click(second, "back", authorID))
	assert.Equal(t, "Pick one", back.Embeds[0].Title)

	home := shown(t, h.click(back, "cancel", authorID))
	assert.Equal(t, "Counter", home.Embeds[0].Title)

	host = h.send(prompttest.Choose(prompttest.AsMessage(messageID, back), choice, guildID, authorID, discord.ComponentStringSelect, "zzz"))
	assert.Equal(t, MsgExpired, ephemeralReply(t, host))
}

func TestModalRoundTrip(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	host := h.click(msg, "name", authorID)
	resp, _ := host.LastResponse()
	require.Equal(t, discord.ResponseModal, resp.Type)
	modal, ok := resp.Data.(discord.ModalData)
	require.True(t, ok)

	decoded, err := Decode(modal.CustomID, counterSchema)
	require.NoError(t, err)
	assert.Equal(t, "name", decoded.Component)
	assert.Equal(t, 0, decoded.Page)

	host = h.send(prompttest.Submit(prompttest.AsMessage(messageID, msg), modal.CustomID, guildID, authorID, map[string]string{"name": "Ada"}))
	resp, _ = host.LastResponse()
	assert.Equal(t, discord.ResponseUpdateMessage, resp.Type)
	assert.Equal(t, "count=0 seed=7 name=Ada", shown(t, host).Embeds[0].Description)
}

func TestFinishDisablesAndDeletes(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	host := h.click(msg, "done", authorID)
	final := shown(t, host)
	for _, row := range final.Components {
		for _, c := range row.Components {
			assert.True(t, c.Disabled, "component %s still enabled", c.CustomID)
		}
	}
	assert.Empty(t, h.state())

	host = h.click(msg, "inc", authorID)
	assert.Equal(t, MsgExpired, ephemeralReply(t, host))
}

func TestNavigationDepthIsBounded(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	host := h.click(msg, "spin", authorID)
	assert.Equal(t, MsgGeneric, ephemeralReply(t, host))

	var page string
	_, err := h.state().Get(keyPage, &page)
	require.NoError(t, err)
	assert.Equal(t, "home", page)
}

func TestSavesBeforeFailureAreKept(t *testing.T) {
	h := newHarness(t)
	msg := h.start()

	host := h.click(msg, "boom", authorID)
	assert.Equal(t, MsgGeneric, ephemeralReply(t, host))

	var partial bool
	ok, err := h.state().Get("partial", &partial)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, partial)
}

func TestRenderIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.start()
	second := h.start()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("render differs (-first +second):\n%s", diff)
	}
}

type unavailableStore struct{ StateStore }

func (unavailableStore) Load(context.Context, string) (State, error) {
	return nil, fmt.Errorf("disk gone: %w", ErrStoreUnavailable)
}

func TestStoreUnavailable(t *testing.T) {
	h := newHarnessWithStore(t, func(s StateStore) StateStore { return unavailableStore{s} })
	msg := h.start()

	host := h.click(msg, "inc", authorID)
	assert.Equal(t, MsgTryLater, ephemeralReply(t, host))
}

func TestUnroutableCustomIDs(t *testing.T) {
	h := newHarness(t)
	h.start()
	on := &discord.Message{ID: messageID}

	unknown, err := Encode(Identity{Command: "counter", Wizard: "counter", UserID: authorID, MessageID: messageID, Component: "nope", Extra: []Field{{Name: "seed", Value: "7"}}})
	require.NoError(t, err)
	outOfRange, err := Encode(Identity{Command: "counter", Wizard: "counter", UserID: authorID, MessageID: messageID, Page: 9, Component: "inc", Extra: []Field{{Name: "seed", Value: "7"}}})
	require.NoError(t, err)

	for name, id := range map[string]string{
		"garbage":           "garbage",
		"unknown wizard":    "x:ghost:20::0:inc",
		"unknown component": unknown,
		"page out of range": outOfRange,
	} {
		t.Run(name, func(t *testing.T) {
			host := h.send(prompttest.Click(on, id, guildID, authorID))
			assert.Equal(t, MsgExpired, ephemeralReply(t, host))
		})
	}
}

func TestConcurrentClicksAreSerialised(t *testing.T) {
	h := newHarness(t)
	msg := h.start()
	id, ok := prompttest.FindCustomID(msg, "inc")
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := prompttest.Click(prompttest.AsMessage(messageID, msg), id, guildID, authorID)
			host := prompttest.NewHost(messageID)
			assert.NoError(t, h.engine.Handle(context.Background(), in, NewChannel(host, in)))
		}()
	}
	wg.Wait()

	var n int
	_, err := h.state().Get("count", &n)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Zero(t, h.engine.locks.size())
}
