package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialJumpOnce(t *testing.T) {
	c := New(0)
	assert.Equal(t, float64(DefaultThreshold), c.Threshold)

	assert.Equal(t, None, c.OnMessages(0, 0, "").Kind)
	assert.Equal(t, JumpToBottom, c.OnMessages(10, 10, "").Kind)
	// one-shot: a reload of the same mount does not jump again.
	c.OnScroll(Metrics{ScrollHeight: 2000, ScrollTop: 0, ClientHeight: 500})
	assert.Equal(t, None, c.OnMessages(12, 0, "").Kind)
}

func TestAnchorLastSeen(t *testing.T) {
	c := New(150)
	c.AnchorLastSeen = true
	a := c.OnMessages(5, 5, "m3")
	assert.Equal(t, Action{Kind: JumpToMessage, MessageID: "m3"}, a)

	c = New(150)
	c.AnchorLastSeen = true
	assert.Equal(t, JumpToBottom, c.OnMessages(5, 5, "").Kind)
}

func TestFollowNearBottom(t *testing.T) {
	c := New(120)
	c.OnMessages(3, 3, "")

	c.OnScroll(Metrics{ScrollHeight: 1000, ScrollTop: 390, ClientHeight: 500})
	assert.True(t, c.NearBottom())
	assert.Equal(t, ScrollToBottom, c.OnMessages(4, 1, "").Kind)

	c.OnScroll(Metrics{ScrollHeight: 1000, ScrollTop: 100, ClientHeight: 500})
	assert.False(t, c.NearBottom())
	assert.Equal(t, None, c.OnMessages(5, 1, "").Kind)

	// Removing a message never scrolls.
	c.OnScroll(Metrics{ScrollHeight: 1000, ScrollTop: 500, ClientHeight: 500})
	assert.Equal(t, None, c.OnMessages(4, 0, "").Kind)
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "scroll-to-bottom", ScrollToBottom.String())
	assert.Equal(t, "none", ActionKind(99).String())
}
