package card

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Reference holds the category and contact lookups shared by every card. The lists are
// loaded once and handed out as copies.
type Reference struct {
	loader     service.ReferenceLoader
	categories []model.Category
	contacts   []model.Contact
	mu         sync.RWMutex
	loaded     bool
}

// NewReference creates an unloaded reference set.
func NewReference(loader service.ReferenceLoader) *Reference {
	return &Reference{loader: loader}
}

// Load fetches both lists the first time it succeeds; later calls do nothing.
func (r *Reference) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	categories, err := r.loader.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reference data: %w", err)
	}
	contacts, err := r.loader.ListContacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reference data: %w", err)
	}

	active := make([]model.Category, 0, len(categories))
	for _, c := range categories {
		if c.IsActive {
			active = append(active, c)
		}
	}

	r.categories = active
	r.contacts = contacts
	r.loaded = true
	return nil
}

// Categories returns the active categories.
func (r *Reference) Categories() []model.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Category(nil), r.categories...)
}

// Contacts returns the known contacts.
func (r *Reference) Contacts() []model.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Contact(nil), r.contacts...)
}

// CategoryName returns the name for a category ID, or the ID itself when unknown.
func (r *Reference) CategoryName(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

// ContactName returns the name for a contact ID, or the ID itself when unknown.
func (r *Reference) ContactName(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contacts {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

// MatchCategory resolves reviewer input to a category ID by ID or case-insensitive name.
func (r *Reference) MatchCategory(input string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	input = strings.TrimSpace(input)
	for _, c := range r.categories {
		if c.ID == input || strings.EqualFold(c.Name, input) {
			return c.ID, true
		}
	}
	return "", false
}

// MatchContact resolves reviewer input to a contact ID by ID or case-insensitive name.
func (r *Reference) MatchContact(input string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	input = strings.TrimSpace(input)
	for _, c := range r.contacts {
		if c.ID == input || strings.EqualFold(c.Name, input) {
			return c.ID, true
		}
	}
	return "", false
}

// Complete fills a card's category from the proposed category name when enrichment left it
// empty, and refreshes the display name.
func (r *Reference) Complete(c *Card) {
	if c.CategoryID == "" && c.CategoryName != "" {
		if id, ok := r.MatchCategory(c.CategoryName); ok {
			c.CategoryID = id
		}
	}
	if c.CategoryID != "" {
		c.CategoryName = r.CategoryName(c.CategoryID)
	}
}
