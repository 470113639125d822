package prompt

// DirectiveKind enumerates what a handler can ask the engine to do.
type DirectiveKind int

const (
	DirectiveRender DirectiveKind = iota
	DirectiveGoTo
	DirectiveNext
	DirectivePrevious
	DirectiveModal
	DirectiveFollowup
	DirectiveAck
	DirectiveFinish
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveRender:
		return "render"
	case DirectiveGoTo:
		return "goto"
	case DirectiveNext:
		return "next"
	case DirectivePrevious:
		return "previous"
	case DirectiveModal:
		return "modal"
	case DirectiveFollowup:
		return "followup"
	case DirectiveAck:
		return "ack"
	case DirectiveFinish:
		return "finish"
	}
	return "unknown"
}

// Directive is one instruction emitted by a page handler. Directives are
// applied in emission order after the handler returns.
type Directive struct {
	Kind      DirectiveKind
	Content   Content
	Page      string
	Modal     Modal
	Text      string
	Ephemeral bool
}
