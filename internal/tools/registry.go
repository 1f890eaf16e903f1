package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Tier ranks tool sources by reliability. Higher-quality tiers sort first
// when tools are advertised to the model.
type Tier int

const (
	// TierAcademic covers academic and official sources.
	TierAcademic Tier = iota
	// TierCommunity covers community and code-hosting sources.
	TierCommunity
	// TierWeb covers general web search.
	TierWeb
)

var tierNames = map[string]Tier{
	"academic":  TierAcademic,
	"official":  TierAcademic,
	"community": TierCommunity,
	"code":      TierCommunity,
	"web":       TierWeb,
}

func (t Tier) String() string {
	switch t {
	case TierAcademic:
		return "academic"
	case TierCommunity:
		return "community"
	default:
		return "web"
	}
}

// InvokeFunc executes a tool call and returns its textual result.
type InvokeFunc func(ctx context.Context, input map[string]interface{}) (string, error)

// Tool is one invocable capability exposed to the research loop.
type Tool struct {
	Name        string
	Description string
	Tier        Tier
	InputSchema map[string]interface{}
	Invoke      InvokeFunc
}

// CatalogEntry is the YAML shape of one tool in the catalog file. The
// catalog declares metadata; implementations are bound at registration.
type CatalogEntry struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Tier        string                 `yaml:"tier"`
	InputSchema map[string]interface{} `yaml:"input_schema"`
	Enabled     *bool                  `yaml:"enabled"`
}

type catalogFile struct {
	Tools []CatalogEntry `yaml:"tools"`
}

// Registry holds the set of tools available to research sessions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if t.Invoke == nil {
		return fmt.Errorf("tool %q has no implementation", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Get returns the named tool, or an error naming it for model feedback.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return t, nil
}

// List returns all tools ordered by tier quality, then name. This is the
// order tools are advertised to the model.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LoadCatalog reads a YAML tool catalog and binds implementations to the
// declared entries. Entries with no binding or enabled: false are skipped.
func (r *Registry) LoadCatalog(path string, impls map[string]InvokeFunc) error {
	return r.loadCatalog(path, func(entry CatalogEntry) InvokeFunc {
		return impls[entry.Name]
	})
}

// LoadCatalogWithBinder is LoadCatalog with a per-entry binding function,
// used when one backend serves every catalog entry.
func (r *Registry) LoadCatalogWithBinder(path string, bind func(CatalogEntry) InvokeFunc) error {
	return r.loadCatalog(path, bind)
}

func (r *Registry) loadCatalog(path string, bind func(CatalogEntry) InvokeFunc) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tool catalog: %w", err)
	}
	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse tool catalog %s: %w", path, err)
	}
	for _, entry := range cat.Tools {
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}
		impl := bind(entry)
		if impl == nil {
			continue
		}
		tier, ok := tierNames[entry.Tier]
		if !ok {
			tier = TierWeb
		}
		if err := r.Register(&Tool{
			Name:        entry.Name,
			Description: entry.Description,
			Tier:        tier,
			InputSchema: entry.InputSchema,
			Invoke:      impl,
		}); err != nil {
			return err
		}
	}
	return nil
}
