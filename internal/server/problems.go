package server

import (
	"sync"

	"github.com/verte-zerg/balance/internal/model"
)

const defaultProblemCapacity = 1024

// problemCache remembers issued problems until they are answered. When full, the
// oldest problem is forgotten.
type problemCache struct {
	mu       sync.Mutex
	capacity int
	byID     map[string]model.Problem
	order    []string
}

func newProblemCache(capacity int) *problemCache {
	if capacity <= 0 {
		capacity = defaultProblemCapacity
	}
	return &problemCache{
		capacity: capacity,
		byID:     make(map[string]model.Problem, capacity),
	}
}

func (c *problemCache) put(p model.Problem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[p.ID]; ok {
		c.byID[p.ID] = p
		return
	}
	for len(c.byID) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byID, oldest)
	}
	c.byID[p.ID] = p
	c.order = append(c.order, p.ID)
}

// take returns the problem and forgets it.
func (c *problemCache) take(id string) (model.Problem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	if !ok {
		return model.Problem{}, false
	}
	delete(c.byID, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return p, true
}

func (c *problemCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
