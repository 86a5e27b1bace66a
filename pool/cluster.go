package pool

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/go-rwsplit"
)

// Cluster owns the groups by name. The set of groups is fixed at
// construction.
type Cluster struct {
	groups map[string]*Group
	names  []string
}

// NewCluster creates a cluster out of already built groups. Group names must
// be unique.
func NewCluster(groups ...*Group) (*Cluster, error) {
	var errs *multierror.Error

	c := &Cluster{groups: make(map[string]*Group, len(groups))}
	for _, g := range groups {
		if g == nil {
			continue
		}
		if _, ok := c.groups[g.name]; ok {
			errs = multierror.Append(errs, rwsplit.ConfigError{
				Group: g.name,
				Err:   fmt.Errorf("%w: group %q", ErrDuplicateTarget, g.name),
			})
			continue
		}
		c.groups[g.name] = g
		c.names = append(c.names, g.name)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	sort.Strings(c.names)
	return c, nil
}

// Group returns the named group. An unknown name is a configuration error.
func (c *Cluster) Group(name string) (*Group, error) {
	if g, ok := c.groups[name]; ok {
		return g, nil
	}
	return nil, rwsplit.ConfigError{Group: name, Err: rwsplit.ErrUnknownGroup}
}

// Groups returns every group sorted by name.
func (c *Cluster) Groups() []*Group {
	ret := make([]*Group, 0, len(c.names))
	for _, name := range c.names {
		ret = append(ret, c.groups[name])
	}
	return ret
}

// Replicas returns every replica of every group.
func (c *Cluster) Replicas() []*Replica {
	var ret []*Replica
	for _, g := range c.Groups() {
		ret = append(ret, g.replicas...)
	}
	return ret
}
