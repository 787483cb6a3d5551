/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"sync"
)

const (
	customCategoriesKey = "custom_categories"
	minCustomWords      = 5
)

var errTooFewWords = errors.New("custom categories need at least five words")

// Categories supplies word categories to matches: the built-in lists
// plus user-defined ones loaded from the store. The engine only ever
// reads from it.
type Categories struct {
	mu     sync.RWMutex
	rnd    *Rand
	store  *Store
	cfg    *Config
	custom []Category
}

func newCategories(cfg *Config, rnd *Rand, store *Store) *Categories {
	c := &Categories{
		rnd:   rnd,
		store: store,
		cfg:   cfg,
	}

	if store == nil {
		return c
	}

	data, ok, err := store.Load(customCategoriesKey)
	if err != nil {
		logf(cfg, "STORE: Loading custom categories failed: %v", err)
		return c
	}
	if !ok {
		return c
	}

	if err := json.Unmarshal(data, &c.custom); err != nil {
		logf(cfg, "STORE: Custom categories are corrupt, ignoring: %v", err)
		c.custom = nil
	}

	return c
}

// List returns all categories, built-ins first.
func (c *Categories) List() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Category, 0, len(builtinCategories)+len(c.custom))
	out = append(out, builtinCategories...)
	out = append(out, c.custom...)
	return out
}

// ByID looks a category up by id.
func (c *Categories) ByID(id string) (Category, bool) {
	for _, cat := range c.List() {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// AddCustom validates and stores a user-defined category, assigning it
// a fresh id. The five-word minimum is this boundary's contract; the
// engine itself only requires two.
func (c *Categories) AddCustom(name, icon string, words []string) (Category, error) {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) < minCustomWords {
		return Category{}, errTooFewWords
	}
	if name == "" {
		name = "Custom Category"
	}

	cat := Category{
		ID:       c.rnd.NewID(),
		Name:     name,
		Icon:     icon,
		Words:    kept,
		IsCustom: true,
	}

	c.mu.Lock()
	c.custom = append(c.custom, cat)
	c.mu.Unlock()

	c.persist()

	return cat, nil
}

// DeleteCustom removes a custom category by id. Built-ins are ignored.
func (c *Categories) DeleteCustom(id string) bool {
	c.mu.Lock()

	removed := false
	dst := c.custom[:0]
	for _, cat := range c.custom {
		if cat.ID == id {
			removed = true
			continue
		}
		dst = append(dst, cat)
	}
	c.custom = dst

	c.mu.Unlock()

	if removed {
		c.persist()
	}
	return removed
}

// persist writes the custom list in the background. A failed save only
// loses durability, never in-memory state.
func (c *Categories) persist() {
	if c.store == nil {
		return
	}

	c.mu.RLock()
	data, err := json.Marshal(c.custom)
	c.mu.RUnlock()

	if err != nil {
		logf(c.cfg, "STORE: Encoding custom categories failed: %v", err)
		return
	}

	go func() {
		if err := c.store.Save(customCategoriesKey, data); err != nil {
			logf(c.cfg, "STORE: Saving custom categories failed: %v", err)
		}
	}()
}
