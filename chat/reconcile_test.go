package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/wire"
)

func msg(id, from, to, text string) wire.Message {
	return wire.Message{
		ID:       id,
		Sender:   wire.UserRef(from),
		Receiver: wire.UserRef(to),
		Text:     text,
		Status:   wire.StatusSent,
	}
}

func ids(list []wire.Message) []string {
	out := []string{}
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

func TestReconcileDedup(t *testing.T) {
	list := []wire.Message{}
	res := Reconcile(list, MessageAdded{Message: msg("m1", "a", "b", "hi")})
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Appended)

	res = Reconcile(res.Messages, MessageAdded{Message: msg("m1", "a", "b", "hi")})
	assert.False(t, res.Changed)
	assert.Equal(t, 0, res.Appended)
	assert.Equal(t, []string{"m1"}, ids(res.Messages))
}

func TestReconcileStatusMonotonic(t *testing.T) {
	list := []wire.Message{msg("m1", "a", "b", "x"), msg("m2", "a", "b", "y")}

	res := Reconcile(list, StatusChanged{IDs: []string{"m1"}, Status: wire.StatusSeen})
	require.True(t, res.Changed)
	assert.Equal(t, wire.StatusSeen, res.Messages[0].Status)
	// input is untouched
	assert.Equal(t, wire.StatusSent, list[0].Status)

	res = Reconcile(res.Messages, StatusChanged{IDs: []string{"m1"}, Status: wire.StatusDelivered})
	assert.False(t, res.Changed)
	assert.Equal(t, wire.StatusSeen, res.Messages[0].Status)

	res = Reconcile(res.Messages, StatusChanged{IDs: []string{"m1", "m2"}, Status: wire.StatusSent})
	assert.False(t, res.Changed)
	assert.Equal(t, wire.StatusSent, res.Messages[1].Status)
}

func TestReconcileSeenBatch(t *testing.T) {
	list := []wire.Message{
		msg("m1", "a", "b", "1"),
		msg("m2", "a", "b", "2"),
		msg("m3", "a", "b", "3"),
	}
	list[2].Status = wire.StatusDelivered

	res := Reconcile(list, StatusChanged{IDs: []string{"m1", "m3", "unknown"}, Status: wire.StatusSeen})
	require.True(t, res.Changed)
	assert.Equal(t, wire.StatusSeen, res.Messages[0].Status)
	assert.Equal(t, wire.StatusSent, res.Messages[1].Status)
	assert.Equal(t, wire.StatusSeen, res.Messages[2].Status)
}

func TestReconcileOptimisticEcho(t *testing.T) {
	c := NewConversation("a", "b")
	out := c.NewOutgoing("hello")
	res := c.Apply(MessageAdded{From: Optimistic, Message: out})
	require.Equal(t, 1, res.Appended)
	assert.True(t, c.Messages()[0].Pending)

	c.Apply(MessageAdded{Message: msg("m0", "b", "a", "unrelated")})

	echo := msg("srv1", "a", "b", "hello")
	echo.ClientID = out.ClientID
	echo.CreatedAt = time.Unix(100, 0)
	res = c.Apply(MessageAdded{Message: echo})
	assert.True(t, res.Changed)
	assert.Equal(t, 0, res.Appended)
	assert.Equal(t, []string{"srv1", "m0"}, ids(c.Messages()))
	assert.False(t, c.Messages()[0].Pending)
}

func TestReconcileEchoWithoutClientID(t *testing.T) {
	c := NewConversation("a", "b")
	c.Apply(MessageAdded{From: Optimistic, Message: c.NewOutgoing("one")})
	c.Apply(MessageAdded{From: Optimistic, Message: c.NewOutgoing("two")})

	c.Apply(MessageAdded{Message: msg("s2", "a", "b", "two")})
	list := c.Messages()
	require.Len(t, list, 2)
	assert.True(t, list[0].Pending)
	assert.Equal(t, "s2", list[1].ID)
	assert.False(t, list[1].Pending)
}

func TestReconcileRemoveAndClear(t *testing.T) {
	list := []wire.Message{msg("m1", "a", "b", "1"), msg("m2", "a", "b", "2")}

	res := Reconcile(list, MessageRemoved{ID: "m1"})
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"m2"}, ids(res.Messages))

	res = Reconcile(res.Messages, MessageRemoved{ID: "m1"})
	assert.False(t, res.Changed)

	res = Reconcile(res.Messages, Cleared{})
	assert.True(t, res.Changed)
	assert.Empty(t, res.Messages)
	assert.NotNil(t, res.Messages)
}

func TestConversationFiltersOtherChats(t *testing.T) {
	c := NewConversation("a", "b")
	res := c.Apply(MessageAdded{Message: msg("x", "c", "a", "from c")})
	assert.False(t, res.Changed)
	assert.Empty(t, c.Messages())
}

func TestConversationLoadMerges(t *testing.T) {
	c := NewConversation("a", "b")
	c.Apply(MessageAdded{Message: msg("m2", "b", "a", "old")})
	c.Apply(StatusChanged{IDs: []string{"m2"}, Status: wire.StatusSeen})
	c.Apply(MessageAdded{Message: msg("m3", "b", "a", "live")})

	echoed := c.NewOutgoing("echoed")
	c.Apply(MessageAdded{From: Optimistic, Message: echoed})
	pending := c.NewOutgoing("pending")
	c.Apply(MessageAdded{From: Optimistic, Message: pending})

	stored := msg("m4", "a", "b", "echoed")
	stored.ClientID = echoed.ClientID
	res := c.Load([]wire.Message{
		msg("m1", "a", "b", "first"),
		msg("m2", "b", "a", "old"),
		stored,
		msg("m1", "a", "b", "first"),
	})
	require.True(t, res.Changed)
	assert.Equal(t, []string{"m1", "m2", "m4", "m3", pending.ID}, ids(c.Messages()))
	assert.Equal(t, 1, res.Appended)
	// live status is not rolled back
	assert.Equal(t, wire.StatusSeen, c.Messages()[1].Status)
	assert.False(t, c.Messages()[2].Pending)
	assert.True(t, c.Messages()[4].Pending)

	// the echo of the kept send still replaces it
	echo := msg("m5", "a", "b", "pending")
	echo.ClientID = pending.ClientID
	res = c.Apply(MessageAdded{Message: echo})
	assert.Equal(t, 0, res.Appended)
	assert.Equal(t, []string{"m1", "m2", "m4", "m3", "m5"}, ids(c.Messages()))
}

func TestSeenTracker(t *testing.T) {
	c := NewConversation("a", "b")
	c.Load([]wire.Message{
		msg("m1", "b", "a", "1"),
		msg("m2", "a", "b", "mine"),
		msg("m3", "b", "a", "3"),
	})
	c.messages[2].Status = wire.StatusSeen

	assert.Equal(t, []string{"m1"}, c.PendingSeen())
	assert.Empty(t, c.PendingSeen())

	c.Apply(MessageAdded{Message: msg("m4", "b", "a", "4")})
	assert.Equal(t, []string{"m4"}, c.PendingSeen())
	assert.Equal(t, "m3", c.LastSeen())
}

func TestTypingSignaler(t *testing.T) {
	events := make(chan string, 16)
	s := NewTypingSignaler(20*time.Millisecond,
		func() { events <- "typing" },
		func() { events <- "stop" },
	)

	s.Keystroke("h")
	s.Keystroke("hi")
	assert.Equal(t, "typing", <-events)
	assert.Equal(t, "typing", <-events)

	select {
	case e := <-events:
		assert.Equal(t, "stop", e)
	case <-time.After(time.Second):
		t.Fatal("stop_typing not signalled")
	}

	s.Keystroke("again")
	assert.Equal(t, "typing", <-events)
	s.Sent()
	assert.Equal(t, "stop", <-events)
	select {
	case e := <-events:
		t.Fatalf("unexpected signal after send: %s", e)
	case <-time.After(60 * time.Millisecond):
	}

	s.Keystroke("  ")
	assert.Equal(t, "stop", <-events)
	s.Stop()
}

func TestTypingIndicator(t *testing.T) {
	ti := NewTypingIndicator("b")
	assert.True(t, ti.Set("b", true))
	assert.False(t, ti.Set("b", true))
	assert.False(t, ti.Set("c", false))
	assert.True(t, ti.Typing())
	assert.True(t, ti.Set("", false))
	assert.False(t, ti.Typing())
}
