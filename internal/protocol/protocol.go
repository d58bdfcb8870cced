// Package protocol defines the contract every followup protocol implements
// and the compact-format parsing that turns CLI specs like "ts-p0.5" into
// attached protocol instances.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/exchange"
)

// FollowupProtocol produces order batches that manage an acquired position.
//
// Init builds the protocol's cache from exchange context (e.g. seeding the
// running high/low with the current price); it runs exactly once, before
// Attach. Attach blocks for the protocol's lifetime, pushing a full
// replacement OrderBatch onto out every time its desired orders change. A
// signal-source disconnect must surface as Attach's returned error, never be
// swallowed: the orchestration loop decides what a dead producer means.
type FollowupProtocol interface {
	// ID identifies this producer instance; it tags every emitted batch.
	ID() string

	// Subtype labels the budget-sharing group this protocol belongs to.
	Subtype() domain.ProtocolType

	Init(ctx context.Context, spec domain.PositionSpec) error
	Attach(ctx context.Context, out chan<- domain.OrderBatch, spec domain.PositionSpec) error
}

// Params are the parsed `<letter><value>` pairs of a compact protocol spec.
type Params map[string]float64

// builder constructs a protocol instance from parsed params.
type builder func(id string, params Params, ex exchange.Client, logger *slog.Logger) (FollowupProtocol, error)

// registry maps compact-format protocol names to constructors.
var registry = map[string]builder{
	"ts": newTrailingStop,
}

// Names returns the registered protocol names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse turns one compact spec of the form "<name>-<param><value>[-...]"
// (e.g. "ts-p0.5") into a protocol instance. Specs are case-insensitive; the
// lowercased form becomes the producer id, so two identically-parameterised
// instances must be given distinct specs by the caller.
func Parse(spec string, ex exchange.Client, logger *slog.Logger) (FollowupProtocol, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	parts := strings.Split(spec, "-")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("protocol: empty spec")
	}

	name := parts[0]
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("protocol: %q (known: %s): %w", name, strings.Join(Names(), ", "), domain.ErrUnknownProtocol)
	}

	params := make(Params, len(parts)-1)
	for _, p := range parts[1:] {
		if len(p) < 2 {
			return nil, fmt.Errorf("protocol: malformed param %q in spec %q", p, spec)
		}
		key := p[:1]
		val, err := strconv.ParseFloat(p[1:], 64)
		if err != nil {
			return nil, fmt.Errorf("protocol: param %q in spec %q: %w", p, spec, err)
		}
		params[key] = val
	}

	return build(spec, params, ex, logger)
}

// ParseAll parses every spec in order, rejecting duplicate producer ids.
func ParseAll(specs []string, ex exchange.Client, logger *slog.Logger) ([]FollowupProtocol, error) {
	seen := make(map[string]bool, len(specs))
	protocols := make([]FollowupProtocol, 0, len(specs))
	for _, spec := range specs {
		// Normalised the same way as Parse so "TS-P0.5" and "ts-p0.5" collide.
		if spec = strings.ToLower(strings.TrimSpace(spec)); spec == "" {
			continue
		}
		if seen[spec] {
			return nil, fmt.Errorf("protocol: duplicate spec %q", spec)
		}
		seen[spec] = true

		p, err := Parse(spec, ex, logger)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, p)
	}
	if len(protocols) == 0 {
		return nil, domain.ErrNoProtocols
	}
	return protocols, nil
}

// CountSubtypes tallies attached instances per budget-sharing group. The
// counts are captured once, before any protocol attaches, and never revised:
// a producer that later disconnects keeps occupying its share.
func CountSubtypes(protocols []FollowupProtocol) map[domain.ProtocolType]int {
	counts := make(map[domain.ProtocolType]int, len(protocols))
	for _, p := range protocols {
		counts[p.Subtype()]++
	}
	return counts
}
