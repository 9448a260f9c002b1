package factory

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/model"
	"fmt"
	"log"
	"sort"
	"time"
)

// WriterFactory creates an anomaly writer from its definition. cfg gives access to shared
// sections such as smtp.
type WriterFactory func(def config.WriterDef, interval time.Duration, cfg *config.Config) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// WriterTypes returns the registered writer types in sorted order.
func WriterTypes() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// CreateWriters creates every enabled writer in cfg. Writers that cannot be created are logged
// and skipped so that one unreachable sink does not keep the engine from starting.
func CreateWriters(cfg *config.Config) []model.Writer {
	writers := make([]model.Writer, 0, len(cfg.Writers))
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating anomaly writer of type: '%s'\n", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			log.Printf("Warning: unknown writer type '%s', skipping.", def.Type)
			continue
		}
		interval, err := def.Interval()
		if err != nil {
			log.Printf("Warning: %v, skipping.", err)
			continue
		}
		writer, err := factory(def, interval, cfg)
		if err != nil {
			log.Printf("Warning: failed to create writer type '%s': %v, skipping.", def.Type, err)
			continue
		}
		writers = append(writers, writer)
	}
	return writers
}
