package viewport

// DefaultThreshold is the distance from the bottom within which the reader is
// considered to follow the conversation.
const DefaultThreshold = 120

type ActionKind int

const (
	// None leaves the viewport where it is.
	None ActionKind = iota
	// JumpToBottom moves to the bottom without animation.
	JumpToBottom
	// JumpToMessage centers the message MessageID without animation.
	JumpToMessage
	// ScrollToBottom is an animated scroll to the bottom.
	ScrollToBottom
)

func (k ActionKind) String() string {
	switch k {
	case JumpToBottom:
		return "jump-to-bottom"
	case JumpToMessage:
		return "jump-to-message"
	case ScrollToBottom:
		return "scroll-to-bottom"
	default:
		return "none"
	}
}

type Action struct {
	Kind      ActionKind
	MessageID string
}

// Metrics is the geometry of the scroll container.
type Metrics struct {
	ScrollHeight float64
	ScrollTop    float64
	ClientHeight float64
}

// DistanceToBottom is how far the viewport's bottom edge is from the end of the list.
func (m Metrics) DistanceToBottom() float64 {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

// Controller decides, on each list mutation, whether to follow the newest message.
// One controller serves one conversation mount.
type Controller struct {
	Threshold float64
	// AnchorLastSeen makes the initial jump center the last seen message
	// instead of the bottom, when there is one.
	AnchorLastSeen bool

	nearBottom  bool
	initialDone bool
}

func New(threshold float64) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{
		Threshold:  threshold,
		nearBottom: true,
	}
}

// OnScroll records the reader's position.
func (c *Controller) OnScroll(m Metrics) {
	c.nearBottom = m.DistanceToBottom() < c.Threshold
}

// NearBottom reports whether new messages will be followed.
func (c *Controller) NearBottom() bool {
	return c.nearBottom
}

// OnMessages is called after each list mutation with the new length and the
// number of messages appended. lastSeen is the newest seen message id, used by
// AnchorLastSeen.
func (c *Controller) OnMessages(length, appended int, lastSeen string) Action {
	if length == 0 {
		return Action{Kind: None}
	}
	if !c.initialDone {
		c.initialDone = true
		c.nearBottom = true
		if c.AnchorLastSeen && lastSeen != "" {
			return Action{Kind: JumpToMessage, MessageID: lastSeen}
		}
		return Action{Kind: JumpToBottom}
	}
	if appended > 0 && c.nearBottom {
		return Action{Kind: ScrollToBottom}
	}
	return Action{Kind: None}
}
