// Package balancer implements the strategies used to pick one replica out of
// the replicas that are currently available.
//
// Every strategy returns nil on an empty input; the caller is expected to
// fall back to the primary. Strategy instances keep state (counters, running
// weights) and are meant to be owned by a single group.
package balancer

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown load balance strategy")

// Target is a replica as seen by a strategy.
type Target interface {
	// Name is unique within a group.
	Name() string
	// Weight is >= 1.
	Weight() int
	// ActiveConns is the current estimate of in-flight operations.
	ActiveConns() int64
}

// Balancer picks one target out of the available ones.
type Balancer interface {
	// Select returns nil if available is empty.
	Select(available []Target) Target
}

// Strategy names a Balancer implementation.
type Strategy string

const (
	RoundRobinStrategy         Strategy = "round-robin"
	WeightedRoundRobinStrategy Strategy = "weighted-round-robin"
	RandomStrategy             Strategy = "random"
	WeightedRandomStrategy     Strategy = "weighted-random"
	LeastConnectionsStrategy   Strategy = "least-connections"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{
	RoundRobinStrategy,
	WeightedRoundRobinStrategy,
	RandomStrategy,
	WeightedRandomStrategy,
	LeastConnectionsStrategy,
}

// ParseStrategy accepts the configuration spelling of a strategy. Underscores
// are accepted in place of dashes.
func ParseStrategy(s string) (Strategy, error) {
	name := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, known := range Strategies {
		if name == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// New creates a fresh balancer for strategy.
func New(strategy Strategy) (Balancer, error) {
	switch strategy {
	case RoundRobinStrategy:
		return NewRoundRobin(), nil
	case WeightedRoundRobinStrategy:
		return NewWeightedRoundRobin(), nil
	case RandomStrategy:
		return NewRandom(nil), nil
	case WeightedRandomStrategy:
		return NewWeightedRandom(nil), nil
	case LeastConnectionsStrategy:
		return NewLeastConnections(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(strategy))
	}
}
