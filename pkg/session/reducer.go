// Package session holds the UI-facing state for one chat screen: the
// visible message list, input text, loading flag and error. A pure
// reducer owns every transition; the Controller adds the asynchronous
// plumbing (in-flight sends, cancellation, conversation switches).
package session

import "chatd/pkg/models"

// State is the observable session state. It is rebuilt on every
// transition, never mutated in place, so observers always see a
// consistent snapshot.
type State struct {
	Messages  []models.Message
	InputText string
	Loading   bool
	Err       string
}

// InputEnabled reports whether the user may edit or submit input.
func (s State) InputEnabled() bool { return !s.Loading }

type event interface{ isEvent() }

// conversationLoaded replaces the visible messages after a conversation
// switch. Input text and loading state are untouched.
type conversationLoaded struct{ messages []models.Message }

// conversationReset clears the screen for a brand-new conversation.
type conversationReset struct{}

// inputChanged replaces the draft input text.
type inputChanged struct{ text string }

// sendStarted appends the optimistic user turn and locks the input.
type sendStarted struct{ user models.Message }

// sendSucceeded appends the assistant reply and unlocks the input.
type sendSucceeded struct{ assistant models.Message }

// sendFailed surfaces the error; rollback additionally drops the
// optimistic user turn (only when no durable conversation existed).
type sendFailed struct {
	message  string
	rollback bool
}

// errorCleared dismisses the visible error.
type errorCleared struct{}

func (conversationLoaded) isEvent() {}
func (conversationReset) isEvent()  {}
func (inputChanged) isEvent()       {}
func (sendStarted) isEvent()        {}
func (sendSucceeded) isEvent()      {}
func (sendFailed) isEvent()         {}
func (errorCleared) isEvent()       {}

// reduce maps (state, event) to the next state. It is pure: no IO, no
// clocks, no mutation of the input state.
func reduce(s State, ev event) State {
	switch e := ev.(type) {
	case conversationLoaded:
		s.Messages = e.messages
	case conversationReset:
		s.Messages = nil
		s.InputText = ""
		// the in-flight task, if any, was cancelled by the caller;
		// loading must not stay stuck on
		s.Loading = false
	case inputChanged:
		s.InputText = e.text
	case sendStarted:
		s.Messages = appendMessage(s.Messages, e.user)
		s.Loading = true
		s.InputText = ""
	case sendSucceeded:
		s.Messages = appendMessage(s.Messages, e.assistant)
		s.Loading = false
	case sendFailed:
		if e.rollback && len(s.Messages) > 0 {
			s.Messages = s.Messages[:len(s.Messages)-1]
		}
		s.Loading = false
		s.Err = e.message
	case errorCleared:
		s.Err = ""
	}
	return s
}

// appendMessage copies before appending so prior snapshots keep their
// backing array intact.
func appendMessage(msgs []models.Message, m models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, m)
}
