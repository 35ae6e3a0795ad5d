// Package dispatch runs questions off the UI loop and matches each answer to
// the turn that asked it.
package dispatch

import (
	"github.com/google/uuid"
)

// State is the lifecycle of a conversation turn.
type State int

const (
	// Pending turns show a placeholder until their result arrives.
	Pending State = iota
	// Finalized turns hold an answer or an error and never change again.
	Finalized
)

// Turn is one question and, once finalized, its answer or error.
type Turn struct {
	ID       string
	Question string
	Answer   string
	Err      error
	State    State
}

// Result is what a worker reports for one turn.
type Result struct {
	TurnID string
	Answer string
	Err    error
}

// Conversation is the ordered list of turns shown in the chat. It is owned by
// the UI loop and is not safe for concurrent use.
type Conversation struct {
	turns []Turn
	index map[string]int
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{index: make(map[string]int)}
}

// Begin appends a pending turn for question and returns it.
func (c *Conversation) Begin(question string) Turn {
	t := Turn{ID: uuid.NewString(), Question: question, State: Pending}
	c.index[t.ID] = len(c.turns)
	c.turns = append(c.turns, t)
	return t
}

// Finalize fills the pending turn r belongs to. It reports false, and changes
// nothing, for unknown or already finalized turns.
func (c *Conversation) Finalize(r Result) bool {
	i, ok := c.index[r.TurnID]
	if !ok || c.turns[i].State != Pending {
		return false
	}
	c.turns[i].Answer = r.Answer
	c.turns[i].Err = r.Err
	c.turns[i].State = Finalized
	return true
}

// Turns returns a copy of the turns in submission order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Pending returns the number of turns still waiting for a result.
func (c *Conversation) Pending() int {
	n := 0
	for _, t := range c.turns {
		if t.State == Pending {
			n++
		}
	}
	return n
}
