package vehicle

import (
	"fmt"
	"sort"

	"github.com/kilianp07/predictivemovement/core/factory"
)

// Constructor builds a started vehicle.
type Constructor func(Spec, Deps) Vehicle

// Class names accepted in vehicle type configuration.
const (
	ClassCar   = "Car"
	ClassTaxi  = "Taxi"
	ClassTruck = "Truck"
	ClassBus   = "Bus"
	ClassDrone = "Drone"
)

// TypeConfig maps a configured vehicle type to a class and its defaults.
type TypeConfig struct {
	Class  string         `json:"class_name" yaml:"class_name"`
	Params map[string]any `json:"params" yaml:"params"`
}

// Classes returns a registry holding every built-in vehicle class. Each
// factory decodes the type parameters into default Spec fields.
func Classes() *factory.Registry[Constructor] {
	r := factory.NewRegistry[Constructor]()
	add := func(name string, build Constructor) {
		_ = r.Register(name, func(params map[string]any) (Constructor, error) {
			var defaults Spec
			if err := factory.Decode(params, &defaults); err != nil {
				return nil, fmt.Errorf("decode %s params: %w", name, err)
			}
			return func(s Spec, d Deps) Vehicle { return build(s.merge(defaults), d) }, nil
		})
	}
	add(ClassCar, func(s Spec, d Deps) Vehicle { return NewCar(s, d) })
	add(ClassTaxi, func(s Spec, d Deps) Vehicle { return NewTaxi(s, d) })
	add(ClassTruck, func(s Spec, d Deps) Vehicle { return NewTruck(s, d) })
	add(ClassBus, func(s Spec, d Deps) Vehicle { return NewBus(s, d) })
	add(ClassDrone, func(s Spec, d Deps) Vehicle { return NewDrone(s, d) })
	return r
}

// Catalog resolves configured vehicle type names to constructors.
type Catalog struct {
	types map[string]Constructor
}

// NewCatalog resolves every type against classes. An unknown class is an
// error so that a bad configuration fails at startup.
func NewCatalog(classes *factory.Registry[Constructor], types map[string]TypeConfig) (*Catalog, error) {
	c := &Catalog{types: make(map[string]Constructor, len(types))}
	for name, tc := range types {
		if !classes.Has(tc.Class) {
			return nil, fmt.Errorf("%w %q for vehicle type %q", ErrUnknownClass, tc.Class, name)
		}
		build, err := classes.Create(factory.KindConfig{Type: tc.Class, Conf: tc.Params})
		if err != nil {
			return nil, fmt.Errorf("vehicle type %q: %w", name, err)
		}
		c.types[name] = build
	}
	return c, nil
}

// Types lists the configured type names in order.
func (c *Catalog) Types() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates a vehicle of the configured type.
func (c *Catalog) Build(typeName string, spec Spec, deps Deps) (Vehicle, error) {
	build, ok := c.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: no vehicle type %q", ErrUnknownClass, typeName)
	}
	return build(spec, deps), nil
}
