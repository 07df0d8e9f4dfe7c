package model

// VisibilityEvent is something that can change whether a conversation
// shows up in a participant's list.
type VisibilityEvent int

const (
	// HiddenByOwner: the participant deleted the conversation on their side.
	HiddenByOwner VisibilityEvent = iota
	// InboundMessage: the other side sent a new message.
	InboundMessage
	// ResolvedByOwner: the participant opened or wrote into the conversation.
	ResolvedByOwner
)

// visible ⇄ hidden. Events missing from the table leave the state alone.
var visibilityTargets = map[VisibilityEvent]bool{
	HiddenByOwner:   false,
	InboundMessage:  true,
	ResolvedByOwner: true,
}

// Target returns the state ev forces, and false when ev keeps the
// current state.
func (ev VisibilityEvent) Target() (visible bool, changes bool) {
	visible, changes = visibilityTargets[ev]
	return visible, changes
}

// NextVisibility returns the visibility after ev is applied to current.
func NextVisibility(current bool, ev VisibilityEvent) bool {
	if target, ok := ev.Target(); ok {
		return target
	}
	return current
}
