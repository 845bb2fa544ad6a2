// Package catalog maps human-readable file names to the opaque file IDs the
// block layer works with. The namespace is flat.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dargueta/disksim"
	"github.com/google/uuid"
)

// Entry is one named file.
type Entry struct {
	ID        disksim.FileID
	Name      string
	CreatedAt time.Time
}

// Catalog is a thread-safe name table.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]Entry
	now    func() time.Time
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{byName: make(map[string]Entry), now: time.Now}
}

// NewWithClock creates an empty catalog that timestamps entries with `now`.
func NewWithClock(now func() time.Time) *Catalog {
	return &Catalog{byName: make(map[string]Entry), now: now}
}

// ValidateName checks that `name` can be used as a file name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return disksim.ErrInvalidArgument.WithMessage("file name is empty")
	}
	if strings.ContainsAny(name, "/\x00") {
		return disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("file name %q contains '/' or NUL", name))
	}
	return nil
}

// Reserve creates an entry for `name` with a fresh ID. The entry isn't
// visible until it's passed to [Catalog.Add], which lets the caller allocate
// blocks under the new ID first.
func (c *Catalog) Reserve(name string) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, exists := c.byName[name]; exists {
		return Entry{}, disksim.ErrExists.WithMessage(fmt.Sprintf("file name %q", name))
	}
	return Entry{
		ID:        disksim.FileID(uuid.New().String()),
		Name:      name,
		CreatedAt: c.now().UTC(),
	}, nil
}

// Add registers an entry. It fails if the name or the ID is already taken.
func (c *Catalog) Add(entry Entry) error {
	if err := ValidateName(entry.Name); err != nil {
		return err
	}
	if entry.ID == "" {
		return disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("file %q has no ID", entry.Name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[entry.Name]; exists {
		return disksim.ErrExists.WithMessage(fmt.Sprintf("file name %q", entry.Name))
	}
	for _, other := range c.byName {
		if other.ID == entry.ID {
			return disksim.ErrExists.WithMessage(
				fmt.Sprintf("file ID %q is already used by %q", entry.ID, other.Name))
		}
	}
	c.byName[entry.Name] = entry
	return nil
}

// Remove deletes the entry for `name` and returns it.
func (c *Catalog) Remove(name string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byName[name]
	if !ok {
		return Entry{}, disksim.ErrNotFound.WithMessage(fmt.Sprintf("file name %q", name))
	}
	delete(c.byName, name)
	return entry, nil
}

// Lookup finds the entry for `name`.
func (c *Catalog) Lookup(name string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.byName[name]
	if !ok {
		return Entry{}, disksim.ErrNotFound.WithMessage(fmt.Sprintf("file name %q", name))
	}
	return entry, nil
}

// NameOf finds the name of the file with the given ID.
func (c *Catalog) NameOf(id disksim.FileID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, entry := range c.byName {
		if entry.ID == id {
			return name, true
		}
	}
	return "", false
}

// Len gives the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// Entries returns every entry sorted by name.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.byName))
	for _, entry := range c.byName {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
