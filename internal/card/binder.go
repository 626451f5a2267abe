package card

import (
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Binder keeps one card in step with the record under review. It re-derives the card only
// when the record identity changes, so edits survive redraws and failed submissions.
type Binder struct {
	ref   *Reference
	card  Card
	bound bool
}

// NewBinder creates a binder. ref may be nil.
func NewBinder(ref *Reference) *Binder {
	return &Binder{ref: ref}
}

// Sync binds the binder to x. It reports whether the card was re-derived.
func (b *Binder) Sync(batchSessionID string, x model.TransactionExtraction) bool {
	id := Identity{BatchSessionID: batchSessionID, TransactionIndex: x.TransactionIndex}
	if b.bound && b.card.Identity == id {
		b.card.State = model.StateOf(x)
		return false
	}
	b.Reset(batchSessionID, x)
	return true
}

// Reset re-derives the card from x, discarding edits. Use it after the record itself changed,
// for example when a clarification resolved it.
func (b *Binder) Reset(batchSessionID string, x model.TransactionExtraction) {
	b.card = FromExtraction(batchSessionID, x)
	if b.ref != nil {
		b.ref.Complete(&b.card)
	}
	b.bound = true
}

// Card returns the bound card for editing.
func (b *Binder) Card() *Card {
	return &b.card
}
