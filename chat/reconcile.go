package chat

import (
	"github.com/mqy/minichat/wire"
)

// Result describes what a reconcile step did to the list.
type Result struct {
	Messages []wire.Message
	// Appended is the number of messages added at the tail.
	Appended int
	// Changed is false when the event was a no-op.
	Changed bool
}

// Reconcile applies e to list and returns the new list. The input slice is never
// modified, so callers may keep handing out the previous list as a snapshot.
//
// Status only moves forward (sent, delivered, seen). A confirmed message
// replaces the pending optimistic message it echoes, in place; any other message
// whose id is already present is dropped.
func Reconcile(list []wire.Message, e Event) Result {
	switch e := e.(type) {
	case MessageAdded:
		return addMessage(list, e)
	case StatusChanged:
		return changeStatus(list, e)
	case MessageRemoved:
		return removeMessage(list, e.ID)
	case Cleared:
		if len(list) == 0 {
			return Result{Messages: list}
		}
		return Result{Messages: []wire.Message{}, Changed: true}
	default:
		return Result{Messages: list}
	}
}

func addMessage(list []wire.Message, e MessageAdded) Result {
	msg := e.Message
	if msg.Status == "" {
		msg.Status = wire.StatusSent
	}

	if e.From == Optimistic {
		msg.Pending = true
		if indexOf(list, msg.ID) >= 0 {
			return Result{Messages: list}
		}
		return Result{Messages: appendCopy(list, msg), Appended: 1, Changed: true}
	}

	msg.Pending = false
	if indexOf(list, msg.ID) >= 0 {
		return Result{Messages: list}
	}
	if i := findEchoed(list, &msg); i >= 0 {
		out := copyList(list)
		msg.Status = out[i].Status.Upgrade(msg.Status)
		out[i] = msg
		return Result{Messages: out, Changed: true}
	}
	return Result{Messages: appendCopy(list, msg), Appended: 1, Changed: true}
}

// findEchoed finds the oldest pending message echoed by the confirmed msg: by
// client id when the server echoes one, otherwise by sender, receiver and text.
func findEchoed(list []wire.Message, msg *wire.Message) int {
	for i := range list {
		p := &list[i]
		if !p.Pending {
			continue
		}
		if msg.ClientID != "" {
			if p.ClientID == msg.ClientID {
				return i
			}
			continue
		}
		if p.Sender == msg.Sender && p.Receiver == msg.Receiver && p.Text == msg.Text &&
			p.File == msg.File && p.Audio == msg.Audio {
			return i
		}
	}
	return -1
}

func changeStatus(list []wire.Message, e StatusChanged) Result {
	if len(e.IDs) == 0 {
		return Result{Messages: list}
	}
	ids := make(map[string]struct{}, len(e.IDs))
	for _, id := range e.IDs {
		ids[id] = struct{}{}
	}

	var out []wire.Message
	for i := range list {
		if _, ok := ids[list[i].ID]; !ok {
			continue
		}
		next := list[i].Status.Upgrade(e.Status)
		if next == list[i].Status {
			continue
		}
		if out == nil {
			out = copyList(list)
		}
		out[i].Status = next
	}
	if out == nil {
		return Result{Messages: list}
	}
	return Result{Messages: out, Changed: true}
}

func removeMessage(list []wire.Message, id string) Result {
	i := indexOf(list, id)
	if i < 0 {
		return Result{Messages: list}
	}
	out := make([]wire.Message, 0, len(list)-1)
	out = append(out, list[:i]...)
	out = append(out, list[i+1:]...)
	return Result{Messages: out, Changed: true}
}

func indexOf(list []wire.Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func copyList(list []wire.Message) []wire.Message {
	out := make([]wire.Message, len(list))
	copy(out, list)
	return out
}

func appendCopy(list []wire.Message, msg wire.Message) []wire.Message {
	out := make([]wire.Message, len(list), len(list)+1)
	copy(out, list)
	return append(out, msg)
}
