// Package memory is a Directory kept in process memory. Tests and single
// host setups change it directly.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/verisched/verisched/cloud/cluster"
)

type Directory struct {
	mu    sync.Mutex
	nodes map[string]cluster.NodeState
	err   error
}

func NewDirectory() *Directory {
	return &Directory{nodes: make(map[string]cluster.NodeState)}
}

// SetNode adds the node or replaces its state.
func (d *Directory) SetNode(name string, st cluster.NodeState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes[name] = st
}

// UpdateNode applies f to the state of an existing node.
func (d *Directory) UpdateNode(name string, f func(*cluster.NodeState)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.nodes[name]
	if !ok {
		return errors.Errorf("no node %s", name)
	}
	f(&st)
	d.nodes[name] = st
	return nil
}

func (d *Directory) RemoveNode(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, name)
}

// Fail makes every call return err until Fail(nil).
func (d *Directory) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *Directory) ListNodes(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	names := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Directory) GetNodeState(ctx context.Context, name string) (cluster.NodeState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return cluster.NodeState{}, d.err
	}
	st, ok := d.nodes[name]
	if !ok {
		return cluster.NodeState{}, errors.Errorf("no node %s", name)
	}
	return st, nil
}
