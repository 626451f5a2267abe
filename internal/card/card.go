// Package card derives the editable review form for one proposed transaction.
package card

import (
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Field is one editable card field.
type Field int

const (
	FieldDescription Field = iota
	FieldCategory
	FieldDate
	FieldPaymentMethod
	FieldContact
)

// Fields lists the editable fields in display order.
var Fields = []Field{FieldDescription, FieldCategory, FieldDate, FieldPaymentMethod, FieldContact}

func (f Field) String() string {
	switch f {
	case FieldDescription:
		return "Description"
	case FieldCategory:
		return "Category"
	case FieldDate:
		return "Date"
	case FieldPaymentMethod:
		return "Payment method"
	case FieldContact:
		return "Contact"
	default:
		return "Unknown"
	}
}

// Identity names the record a card was derived from.
type Identity struct {
	BatchSessionID   string
	TransactionIndex int
}

// Card is the reviewer's form for one record. Read-only facts sit beside the editable fields.
type Card struct {
	Identity      Identity
	Description   string
	CategoryID    string
	CategoryName  string
	Date          string
	PaymentMethod string
	ContactID     string
	Counterparty  string
	Currency      string
	Notes         string
	Amount        float64
	Confidence    float64
	State         model.ReviewState
}

// FromExtraction initializes a card from a record's transaction and enrichment data.
func FromExtraction(batchSessionID string, x model.TransactionExtraction) Card {
	c := Card{
		Identity: Identity{
			BatchSessionID:   batchSessionID,
			TransactionIndex: x.TransactionIndex,
		},
		Notes:      x.Notes,
		Confidence: x.ConfidenceScore,
		State:      model.StateOf(x),
	}

	if t := x.Transaction; t != nil {
		c.Description = t.Description
		c.Date = model.DateOnly(t.Time)
		c.PaymentMethod = t.PaymentMethod
		c.Amount = t.Amount
		c.Currency = t.Currency
		c.CategoryName = t.Category
		c.Counterparty = counterparty(t)
	}
	if e := x.EnrichmentData; e != nil {
		c.CategoryID = e.CategoryID
		c.ContactID = e.ContactID
	}
	return c
}

// Get returns the value of an editable field.
func (c Card) Get(f Field) string {
	switch f {
	case FieldDescription:
		return c.Description
	case FieldCategory:
		return c.CategoryID
	case FieldDate:
		return c.Date
	case FieldPaymentMethod:
		return c.PaymentMethod
	case FieldContact:
		return c.ContactID
	default:
		return ""
	}
}

// Set changes an editable field.
func (c *Card) Set(f Field, value string) {
	switch f {
	case FieldDescription:
		c.Description = value
	case FieldCategory:
		c.CategoryID = value
	case FieldDate:
		c.Date = value
	case FieldPaymentMethod:
		c.PaymentMethod = value
	case FieldContact:
		c.ContactID = value
	}
}

// Edits returns the reviewer's edits, refusing approval while required fields are empty.
func (c Card) Edits() (service.Edits, error) {
	edits := service.Edits{
		Description:   c.Description,
		CategoryID:    c.CategoryID,
		Date:          c.Date,
		PaymentMethod: c.PaymentMethod,
		ContactID:     c.ContactID,
	}
	if err := review.ValidateEdits(edits); err != nil {
		return service.Edits{}, err
	}
	return edits, nil
}

func counterparty(t *model.TransactionPayload) string {
	if t.To != nil && t.To.Name != "" {
		return t.To.Name
	}
	if t.From != nil {
		return t.From.Name
	}
	return ""
}
