// Package actions remembers each user's last stored expense so it can be
// undone or ignored shortly afterwards.
package actions

import (
	"errors"
	"strconv"
	"time"

	"findot/internal/cache"
	"findot/internal/core"
)

const (
	DefaultCapacity = 50
	DefaultWindow   = 10 * time.Minute
)

var (
	ErrNoAction = errors.New("no recent action")
	ErrExpired  = errors.New("action window expired")
	ErrNotFound = errors.New("recorded row no longer exists")
)

// Action is the last expense a user stored.
type Action struct {
	CreatedAt time.Time
	Expense   core.Expense
}

func (a Action) same(b Action) bool {
	return a.CreatedAt.Equal(b.CreatedAt) && a.Expense.Ref == b.Expense.Ref
}

// Cache holds one Action per user. Expiry is evaluated on use.
type Cache struct {
	entries *cache.FIFOCache[Action]
	window  time.Duration
}

func NewCache(capacity int, window time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{entries: cache.NewFIFOCache[Action](capacity), window: window}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Record replaces the user's previous action.
func (c *Cache) Record(userID int64, a Action) {
	c.entries.Set(key(userID), a)
}

// Peek returns the user's action without removing it.
func (c *Cache) Peek(userID int64) (Action, error) {
	a, ok := c.entries.Get(key(userID))
	if !ok {
		return Action{}, ErrNoAction
	}
	return a, nil
}

// Consume returns and removes the user's action.
func (c *Cache) Consume(userID int64) (Action, error) {
	a, ok := c.entries.Take(key(userID))
	if !ok {
		return Action{}, ErrNoAction
	}
	return a, nil
}

// Forget removes a only if it is still the user's current action.
func (c *Cache) Forget(userID int64, a Action) {
	c.entries.DeleteIf(key(userID), a.same)
}

func (c *Cache) IsExpired(a Action, now time.Time) bool {
	return now.Sub(a.CreatedAt) > c.window
}

func (c *Cache) Window() time.Duration { return c.window }

func (c *Cache) Len() int { return c.entries.Size() }
