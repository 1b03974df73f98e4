package market

import (
	"fmt"
	"sort"
	"sync"
)

// Category groups items the way the marketplace filters them
type Category int8

const (
	Container Category = iota
	WeaponSkin
	Sticker
	Misc
)

func (c Category) String() string {
	switch c {
	case Container:
		return "Container"
	case WeaponSkin:
		return "WeaponSkin"
	case Sticker:
		return "Sticker"
	case Misc:
		return "Misc"
	default:
		return "Unknown"
	}
}

// ParseCategory is the inverse of Category.String
func ParseCategory(s string) (Category, error) {
	for c := Container; c <= Misc; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return Misc, fmt.Errorf("unknown item category %q", s)
}

// Rarity is the drop grade of an item
type Rarity int8

const (
	BaseGrade Rarity = iota
	Common
	Uncommon
	Rare
	Mythical
	Legendary
	Ancient
	ExceedinglyRare
)

var rarityNames = [...]string{"BaseGrade", "Common", "Uncommon", "Rare", "Mythical", "Legendary", "Ancient", "ExceedinglyRare"}

func (r Rarity) String() string {
	if r < 0 || int(r) >= len(rarityNames) {
		return "Unknown"
	}
	return rarityNames[r]
}

// ParseRarity is the inverse of Rarity.String
func ParseRarity(s string) (Rarity, error) {
	for i, name := range rarityNames {
		if name == s {
			return Rarity(i), nil
		}
	}
	return BaseGrade, fmt.Errorf("unknown item rarity %q", s)
}

// Item describes something that can be listed. Items with equal
// MarketHashName trade in the same book.
type Item struct {
	Name     string
	Rarity   Rarity
	Category Category
	// Exterior is only set for weapon skins, e.g. "Factory New"
	Exterior string
}

// MarketHashName is the book key: the name, plus the exterior for weapon skins
func (it Item) MarketHashName() string {
	if it.Category == WeaponSkin && it.Exterior != "" {
		return fmt.Sprintf("%s (%s)", it.Name, it.Exterior)
	}
	return it.Name
}

// Catalog manages item metadata in a thread-safe manner
// Trading does not require an item to be registered; the catalog only feeds
// category filters and drop pools.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]Item // market hash name -> item
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[string]Item)}
}

// Register adds an item to the catalog
// Returns error if an item with the same market hash name already exists
func (c *Catalog) Register(it Item) error {
	if it.Name == "" {
		return ErrInvalidItem
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := it.MarketHashName()
	if _, exists := c.items[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, key)
	}
	c.items[key] = it
	return nil
}

// Lookup retrieves an item by market hash name
func (c *Catalog) Lookup(name string) (Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[name]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	return it, nil
}

// Exists checks if an item is registered
func (c *Catalog) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[name]
	return ok
}

// List returns all items sorted by market hash name
func (c *Catalog) List() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketHashName() < out[j].MarketHashName() })
	return out
}

// ByCategory returns only items in category, sorted
func (c *Catalog) ByCategory(cat Category) []Item {
	var out []Item
	for _, it := range c.List() {
		if it.Category == cat {
			out = append(out, it)
		}
	}
	return out
}

// Count returns the number of registered items
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
