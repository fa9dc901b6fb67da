// Package strategy defines the pluggable strategy contract and the
// driver that runs one strategy instance against live market events.
package strategy

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Context carries the shared handles a strategy factory needs: storage,
// the portfolio it trades through, and a logger. Strategies never reach
// outside this capability set.
type Context struct {
	Storage   interface{} // storage.Storage; kept as interface{} to avoid an import cycle with factories that don't need it
	Portfolio interface{} // *portfolio.Portfolio
	Logger    *zap.Logger
}

// Options is the parsed, strategy-specific configuration produced by an
// options parser from raw JSON.
type Options interface{}

// Strategy is the capability set every pluggable strategy implements.
// Init is called exactly once before any Eval call. Channels is called
// before subscription and must be constant over the strategy's
// lifetime. Eval must be synchronous with respect to model state but
// may perform asynchronous sub-work; the driver awaits completion
// before processing the next envelope.
type Strategy interface {
	Key() string
	Init(ctx context.Context) error
	Eval(ctx context.Context, env types.MarketEventEnvelope) ([]types.TradeSignal, error)
	Model() (map[string]any, error)
	Channels() map[types.Channel]struct{}
}

// OptionsParser parses a strategy's raw JSON configuration into an
// Options value.
type OptionsParser func(raw []byte) (Options, error)

// Factory constructs a Strategy instance given a name, shared context,
// and raw JSON configuration.
type Factory func(name string, sctx Context, raw []byte) (Strategy, error)

type registration struct {
	parser  OptionsParser
	factory Factory
}

// Registry maps strategy_type_name -> { options_parser, factory }.
// Registration happens at process start; duplicate names are a fatal
// startup error, matching the source's static-inventory mechanism.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds a strategy type. It panics if typeName is already
// registered — duplicate strategy type names are a startup-time
// programming error, not a recoverable runtime condition.
func (r *Registry) Register(typeName string, parser OptionsParser, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[typeName]; exists {
		panic(fmt.Sprintf("strategy: duplicate registration for type %q", typeName))
	}
	r.types[typeName] = registration{parser: parser, factory: factory}
}

// ParseOptions parses raw JSON for typeName using its registered parser.
func (r *Registry) ParseOptions(typeName string, raw []byte) (Options, error) {
	r.mu.RLock()
	reg, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown type %q", typeName)
	}
	return reg.parser(raw)
}

// Build constructs a named Strategy instance of typeName.
func (r *Registry) Build(typeName, instanceName string, sctx Context, raw []byte) (Strategy, error) {
	r.mu.RLock()
	reg, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown type %q", typeName)
	}
	return reg.factory(instanceName, sctx, raw)
}
