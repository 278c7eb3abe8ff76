package hub

import (
	"context"
	"iter"
)

// Transcript is a finite, restartable sequence over one conversation. Each
// iteration reads the store afresh; there is no live subscription.
type Transcript struct {
	conversationID string
	store          Store
}

// ConversationID returns the conversation this transcript reads.
func (t Transcript) ConversationID() string { return t.conversationID }

// Messages yields messages in timestamp order. A store failure is yielded once
// as the error value and ends the sequence.
func (t Transcript) Messages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		msgs, err := t.store.ListMessages(ctx, t.conversationID)
		if err != nil {
			yield(Message{}, err)
			return
		}
		for _, m := range msgs {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Collect drains one pass of the sequence.
func (t Transcript) Collect(ctx context.Context) ([]Message, error) {
	var out []Message
	for m, err := range t.Messages(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
