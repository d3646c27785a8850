package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

// Catalog lists the models a user can pick from. It asks the backend when the backend can list its
// models, and otherwise (or on failure) serves a fallback list. Activation flags toggled through the
// catalog are kept in memory and overlaid on every listing.
type Catalog struct {
	lister   ModelLister
	fallback []models.Model

	mu     sync.RWMutex
	active map[string]bool

	logger *slog.Logger
}

var errListingUnsupported = errors.New("backend cannot list models")

// NewCatalog creates a Catalog over backend. When fallback is empty, models.DefaultModels is used.
func NewCatalog(backend Backend, fallback []models.Model, logger *slog.Logger) *Catalog {
	if len(fallback) == 0 {
		fallback = models.DefaultModels()
	}
	lister, _ := backend.(ModelLister)
	return &Catalog{
		lister:   lister,
		fallback: fallback,
		active:   make(map[string]bool),
		logger:   logger.With(slog.String("module", "catalog")),
	}
}

// Models returns the selectable models. It never fails: a listing failure is logged and the fallback
// list is returned instead.
func (c *Catalog) Models(ctx context.Context) []models.Model {
	ms, err := c.list(ctx)
	if err != nil {
		c.logger.Warn("Failed to list models, using built-in defaults", slog.String(errLoggerKey, err.Error()))
		ms = slices.Clone(c.fallback)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range ms {
		if active, ok := c.active[ms[i].Name]; ok {
			ms[i].IsActive = active
		}
	}
	return ms
}

func (c *Catalog) list(ctx context.Context) ([]models.Model, error) {
	if c.lister == nil {
		return nil, errListingUnsupported
	}
	ms, err := c.lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, errors.New("backend returned no models")
	}
	return ms, nil
}

// SetActive records the activation flag of the named model.
func (c *Catalog) SetActive(name string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[name] = active
}
