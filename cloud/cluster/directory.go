// Package cluster describes the worker nodes the scheduler may place work on.
// A Directory is the source of per-node resource facts; it is usually backed
// by a remote key-value service.
package cluster

import (
	"context"

	"github.com/pkg/errors"
)

// NodeState is what a node offers. Totals describe the hardware; the
// available amounts are what the scheduler may reserve. Sizes are bytes.
type NodeState struct {
	CPUModel            string `json:"CPU model"`
	CPUNumber           int    `json:"CPU number"`
	AvailableCPUNumber  int    `json:"available CPU number"`
	RAMMemory           int64  `json:"RAM memory"`
	AvailableRAMMemory  int64  `json:"available RAM memory"`
	DiskMemory          int64  `json:"disk memory"`
	AvailableDiskMemory int64  `json:"available disk memory"`
	AvailableForJobs    bool   `json:"available for jobs"`
	AvailableForTasks   bool   `json:"available for tasks"`
}

func (s NodeState) Validate() error {
	if s.AvailableCPUNumber < 0 || s.AvailableRAMMemory < 0 || s.AvailableDiskMemory < 0 {
		return errors.Errorf("negative available resources: %+v", s)
	}
	if s.AvailableCPUNumber > s.CPUNumber || s.AvailableRAMMemory > s.RAMMemory || s.AvailableDiskMemory > s.DiskMemory {
		return errors.Errorf("available resources exceed totals: %+v", s)
	}
	return nil
}

//go:generate mockgen -source=directory.go -package=cluster -destination=directory_mock.go

// Directory lists worker nodes and their current facts. Calls may go over
// the network and must honor ctx.
type Directory interface {
	ListNodes(ctx context.Context) ([]string, error)
	GetNodeState(ctx context.Context, name string) (NodeState, error)
}

// FetchAll reads every listed node. Any single failure fails the whole read
// so that callers never act on a partial view.
func FetchAll(ctx context.Context, dir Directory) (map[string]NodeState, error) {
	names, err := dir.ListNodes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing nodes")
	}
	states := make(map[string]NodeState, len(names))
	for _, name := range names {
		st, err := dir.GetNodeState(ctx, name)
		if err != nil {
			return nil, errors.Wrapf(err, "reading state of node %s", name)
		}
		if err := st.Validate(); err != nil {
			return nil, errors.Wrapf(err, "node %s", name)
		}
		states[name] = st
	}
	return states, nil
}
