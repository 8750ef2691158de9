// Package local is a Directory with a single node: the host the scheduler
// runs on. Facts come from the operating system; a configured reserve is
// held back for the system itself.
package local

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/verisched/verisched/cloud/cluster"
)

type Config struct {
	// Name defaults to the host name.
	Name string
	// WorkDir is the file system whose size is offered as disk.
	WorkDir string

	ReserveCPU  int
	ReserveRAM  int64
	ReserveDisk int64

	AvailableForJobs  bool
	AvailableForTasks bool
}

type directory struct {
	config Config
}

func NewDirectory(config Config) (cluster.Directory, error) {
	if config.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, errors.Wrap(err, "resolving host name")
		}
		config.Name = host
	}
	if config.WorkDir == "" {
		config.WorkDir = os.TempDir()
	}
	if config.ReserveCPU < 0 || config.ReserveRAM < 0 || config.ReserveDisk < 0 {
		return nil, errors.Errorf("negative reserve in %+v", config)
	}
	return &directory{config: config}, nil
}

func (d *directory) ListNodes(ctx context.Context) ([]string, error) {
	return []string{d.config.Name}, nil
}

func (d *directory) GetNodeState(ctx context.Context, name string) (cluster.NodeState, error) {
	if name != d.config.Name {
		return cluster.NodeState{}, errors.Errorf("no node %s", name)
	}
	st := cluster.NodeState{
		AvailableForJobs:  d.config.AvailableForJobs,
		AvailableForTasks: d.config.AvailableForTasks,
	}

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return st, errors.Wrap(err, "reading CPU info")
	}
	if len(infos) > 0 {
		st.CPUModel = infos[0].ModelName
	}
	if st.CPUNumber, err = cpu.CountsWithContext(ctx, true); err != nil {
		return st, errors.Wrap(err, "counting CPUs")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, errors.Wrap(err, "reading memory size")
	}
	st.RAMMemory = int64(vm.Total)
	usage, err := disk.UsageWithContext(ctx, d.config.WorkDir)
	if err != nil {
		return st, errors.Wrapf(err, "reading size of %s", d.config.WorkDir)
	}
	st.DiskMemory = int64(usage.Total)

	st.AvailableCPUNumber = int(atLeastZero(int64(st.CPUNumber - d.config.ReserveCPU)))
	st.AvailableRAMMemory = atLeastZero(st.RAMMemory - d.config.ReserveRAM)
	st.AvailableDiskMemory = atLeastZero(st.DiskMemory - d.config.ReserveDisk)
	return st, nil
}

func atLeastZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
