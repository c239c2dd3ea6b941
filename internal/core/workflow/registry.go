package workflow

import "fmt"

// Registry holds the installed workflow definitions, addressable by name
// for task dispatch and by trigger event for ingestion.
type Registry struct {
	byName  map[string]*Definition
	byEvent map[string]*Definition
	ordered []*Definition
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Definition),
		byEvent: make(map[string]*Definition),
	}
}

func (r *Registry) Register(def *Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	if _, ok := r.byName[def.Name]; ok {
		return fmt.Errorf("workflow %s already registered", def.Name)
	}
	if other, ok := r.byEvent[def.Event]; ok {
		return fmt.Errorf("event %s already bound to workflow %s", def.Event, other.Name)
	}
	r.byName[def.Name] = def
	r.byEvent[def.Event] = def
	r.ordered = append(r.ordered, def)
	return nil
}

func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

func (r *Registry) GetByEvent(event string) (*Definition, bool) {
	def, ok := r.byEvent[event]
	return def, ok
}

func (r *Registry) Definitions() []*Definition {
	return r.ordered
}
