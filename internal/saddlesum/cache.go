package saddlesum

import (
	"fmt"
	"sort"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

const initialCacheSize = 2

// Item is a memoized saddlepoint fit at one lambda.
type Item struct {
	// Mean is the mean of the tilted distribution (first derivative of the
	// cumulant generating function).
	Mean   float64
	Lambda float64
	// D2K is the variance of the tilted distribution.
	D2K float64
	// C and D are the Lugannani-Rice auxiliary terms.
	C float64
	D float64
	// ExpH normalizes the tilted density.
	ExpH float64
}

// Cache holds fits ordered by ascending Mean.
type Cache struct {
	items    []Item
	maxItems int
}

// NewCache returns an empty cache that refuses to grow beyond maxItems.
// maxItems <= 0 means unbounded.
func NewCache(maxItems int) *Cache {
	return &Cache{
		items:    make([]Item, 0, initialCacheSize),
		maxItems: maxItems,
	}
}

func (c *Cache) Len() int { return len(c.items) }

// At returns the i-th item in mean order.
func (c *Cache) At(i int) Item { return c.items[i] }

// Locate returns the number of items whose mean is strictly less than mean.
// For a query mean, items[i-1] and items[i] bracket it.
func (c *Cache) Locate(mean float64) int {
	return sort.Search(len(c.items), func(i int) bool {
		return c.items[i].Mean >= mean
	})
}

// Insert places it at its sorted position, doubling the backing array when
// it is full.
func (c *Cache) Insert(it Item) error {
	n := len(c.items)
	if c.maxItems > 0 && n >= c.maxItems {
		return fmt.Errorf("%w: lambda cache exceeded %d items", apperr.ErrResource, c.maxItems)
	}
	if n == cap(c.items) {
		grown := make([]Item, n, max(2*cap(c.items), initialCacheSize))
		copy(grown, c.items)
		c.items = grown
	}
	i := c.Locate(it.Mean)
	c.items = c.items[:n+1]
	copy(c.items[i+1:], c.items[i:n])
	c.items[i] = it
	return nil
}
