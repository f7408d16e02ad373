package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ex-tgbot/pkg/tgbot"
)

// Definition describes one configured bot transport.
type Definition struct {
	// Name is the stable bot identifier used in logs.
	Name string
	// Type identifies which builder constructs this transport.
	Type string
	// Enabled controls whether this definition is active.
	Enabled bool
	// Config stores transport-specific JSON payload.
	Config []byte
}

// Runtime is one built transport.
type Runtime struct {
	// Name is copied from the definition.
	Name string
	// Type is copied from the definition.
	Type string
	// Client feeds the poll loop and serves handler actions.
	Client tgbot.Client
}

// BuilderFunc builds one runtime from one configured definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds one transport type token to its builder.
type Descriptor struct {
	// Type is the transport type token from configuration (for example "botapi").
	Type string
	// Builder constructs one runtime for this type.
	Builder BuilderFunc
}

// Registry maps transport types to runtime builders.
type Registry struct {
	builders map[string]BuilderFunc
	types    []string
}

// NewRegistry creates one immutable transport registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	builders := make(map[string]BuilderFunc, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := builders[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		builders[descriptor.Type] = descriptor.Builder
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{
		builders: builders,
		types:    types,
	}, nil
}

// Types returns all registered transport types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	types := make([]string, len(r.types))
	copy(types, r.types)

	return types
}

// BuildEnabled builds all enabled definitions. Names must be unique.
func (r *Registry) BuildEnabled(
	ctx context.Context,
	definitions []Definition,
	logger *slog.Logger,
) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build transports: nil registry")
	}
	if logger == nil {
		logger = slog.Default()
	}

	runtimes := make([]Runtime, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build transport: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build transport %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if definition.Type == "" {
			return nil, fmt.Errorf("build transport %s: empty type", definition.Name)
		}

		builder, exists := r.builders[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build transport %s type %s: unsupported type", definition.Name, definition.Type)
		}

		runtime, err := builder(ctx, definition, logger.With("bot", definition.Name))
		if err != nil {
			return nil, fmt.Errorf("build transport %s type %s: %w", definition.Name, definition.Type, err)
		}
		if runtime.Client == nil {
			return nil, fmt.Errorf("build transport %s type %s: nil client", definition.Name, definition.Type)
		}
		runtime.Name = definition.Name
		runtime.Type = definition.Type

		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}
