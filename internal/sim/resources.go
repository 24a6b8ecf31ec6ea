package sim

import (
	"fmt"
	"slices"

	"github.com/signalsfoundry/recovery-simulator/internal/distribution"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// Resource is one entry of a system's resource table.
type Resource struct {
	Name  string
	Group model.ResourceGroup
	Model distribution.Model
}

// Resources is the ordered resource table of a system. Declaration order
// decides distribution order within a group.
type Resources struct {
	order  []string
	byName map[string]Resource
}

// NewResources constructs an empty table.
func NewResources() *Resources {
	return &Resources{byName: make(map[string]Resource)}
}

// Add appends a resource. Names must be unique and every resource needs a
// distribution model.
func (r *Resources) Add(res Resource) error {
	if res.Name == "" || res.Model == nil {
		return fmt.Errorf("%w: resource %q needs a name and a distribution model", ErrInvalidSystem, res.Name)
	}
	if _, dup := r.byName[res.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateResource, res.Name)
	}
	r.order = append(r.order, res.Name)
	r.byName[res.Name] = res
	return nil
}

// Get returns the named resource.
func (r *Resources) Get(name string) (Resource, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// Model returns the named resource's distribution model or nil.
func (r *Resources) Model(name string) distribution.Model { return r.byName[name].Model }

// Names lists resource names in declaration order.
func (r *Resources) Names() []string { return slices.Clone(r.order) }

func (r *Resources) Len() int { return len(r.order) }

func (r *Resources) group(g model.ResourceGroup) []string {
	var out []string
	for _, name := range r.order {
		if r.byName[name].Group == g {
			out = append(out, name)
		}
	}
	return out
}
