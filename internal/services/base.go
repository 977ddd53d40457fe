package services

// Base carries the name and default priority of a service. Services
// embed it to satisfy the Service interface.
type Base struct {
	name     string
	priority int
}

// NewBase creates a Base with the given name and priority.
func NewBase(name string, priority int) Base {
	return Base{name: name, priority: priority}
}

// Name returns the service name.
func (b Base) Name() string {
	return b.name
}

// Priority returns the default priority of the service.
func (b Base) Priority() int {
	return b.priority
}
