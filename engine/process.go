package engine

import (
	"context"
	"fmt"

	"github.com/dogmatiq/cosyne"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/process"
)

// versionCache resolves deployed process versions for the element machines.
//
// Versions are immutable, so once a version has been loaded and its lookup
// tables built it is retained for the lifetime of the engine.
type versionCache struct {
	engine *Engine

	m        cosyne.Mutex
	versions map[string]*process.Version
}

// Version returns the given deployment of a process, with its lookup tables
// built.
func (c *versionCache) Version(
	ctx context.Context,
	owner, processID, versionID string,
) (*process.Version, error) {
	if owner != c.engine.owner {
		return nil, fmt.Errorf(
			"process %s belongs to %s, not %s",
			processID,
			owner,
			c.engine.owner,
		)
	}

	if err := c.m.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.m.Unlock()

	key := processID + "/" + versionID

	if v, ok := c.versions[key]; ok {
		return v, nil
	}

	ds, err := c.engine.dataStore(ctx)
	if err != nil {
		return nil, err
	}

	pv, err := ds.LoadProcessVersion(ctx, processID, versionID)
	if err != nil {
		return nil, err
	}

	def, err := unmarshalDefinition(c.engine.opts, pv)
	if err != nil {
		return nil, err
	}

	v, err := process.NewVersion(owner, processID, versionID, def)
	if err != nil {
		return nil, err
	}

	if c.versions == nil {
		c.versions = map[string]*process.Version{}
	}
	c.versions[key] = v

	return v, nil
}

// unmarshalDefinition reconstructs a process graph from its stored packet.
func unmarshalDefinition(
	opts *engineOptions,
	pv persistence.ProcessVersion,
) (*process.Definition, error) {
	v, err := opts.Marshaler.Unmarshal(pv.Definition)
	if err != nil {
		return nil, fmt.Errorf(
			"unable to unmarshal definition of process %s version %s: %w",
			pv.ProcessID,
			pv.VersionID,
			err,
		)
	}

	def, ok := v.(*process.Definition)
	if !ok {
		return nil, fmt.Errorf(
			"stored definition of process %s version %s is not a process graph",
			pv.ProcessID,
			pv.VersionID,
		)
	}

	return def, nil
}
