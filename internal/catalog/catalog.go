// Package catalog defines the versioned fixture-model catalog and its
// in-memory projection. The catalog describes every known lighting fixture
// model: its capabilities, command-encoding hints for the device-control
// layer, and a reference to remote artwork.
package catalog

import "sync"

// MaxSupportedVersion is the highest catalog document version this build
// can decode. Documents declaring a newer version are rejected whole,
// because entry encodings of future versions are not guaranteed decodable.
const MaxSupportedVersion = 2

// FX channel counts known to shipping fixtures.
const (
	FXChannelsNone  = 0
	FXChannelsBasic = 9
	FXChannelsFull  = 17
)

// Capabilities describes what a fixture model can do.
type Capabilities struct {
	SupportsRGB       bool `json:"supportsRGB"`
	SupportsCCT       bool `json:"supportsCCT"`
	SupportsMusicMode bool `json:"supportsMusicMode"`
	FXChannelCount    int  `json:"fxChannelCount"`
}

// CCTRange is the color-temperature range of a model in kelvin.
// A nil range means the device reports its own range.
type CCTRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Model is one fixture definition. ModelID is the stable unique key;
// lookups are always by exact key, never by position.
type Model struct {
	ModelID      string            `json:"modelId"`
	ImageRef     string            `json:"imageRef"`
	Capabilities Capabilities      `json:"capabilities"`
	CCTRange     *CCTRange         `json:"cctRange,omitempty"`
	CommandHints map[string]string `json:"commandHints,omitempty"`
}

// Catalog is the root document: a monotonic version plus an ordered
// sequence of models.
type Catalog struct {
	Version int     `json:"version"`
	Models  []Model `json:"entries"`

	byID map[string]int
}

// New builds a catalog from already-validated models and indexes it.
func New(version int, models []Model) *Catalog {
	c := &Catalog{Version: version, Models: models}
	c.reindex()
	return c
}

// Lookup returns the model for the given ID, or false if absent.
func (c *Catalog) Lookup(modelID string) (Model, bool) {
	if c == nil {
		return Model{}, false
	}
	i, ok := c.byID[modelID]
	if !ok {
		return Model{}, false
	}
	return c.Models[i], true
}

// Len returns the number of models in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Models)
}

// reindex rebuilds the modelID lookup index.
func (c *Catalog) reindex() {
	c.byID = make(map[string]int, len(c.Models))
	for i, m := range c.Models {
		c.byID[m.ModelID] = i
	}
}

// Cache holds the current in-memory catalog projection. It is replaced
// wholesale on each successful sync; readers either see the previous
// catalog or the fully-updated new one, never a partial state.
type Cache struct {
	mu      sync.RWMutex
	current *Catalog
}

// NewCache creates an empty catalog cache.
func NewCache() *Cache {
	return &Cache{}
}

// Current returns the current catalog, or nil if none has been loaded.
// The returned catalog is a stable snapshot and must not be mutated.
func (c *Cache) Current() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Replace swaps in a new catalog atomically.
func (c *Cache) Replace(cat *Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = cat
}

// Lookup returns the model for the given ID from the current catalog.
func (c *Cache) Lookup(modelID string) (Model, bool) {
	return c.Current().Lookup(modelID)
}

// Version returns the current catalog version, or 0 if none is loaded.
func (c *Cache) Version() int {
	cat := c.Current()
	if cat == nil {
		return 0
	}
	return cat.Version
}

// Len returns the number of models in the current catalog.
func (c *Cache) Len() int {
	return c.Current().Len()
}
