package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ErrIncompleteRestriction is returned when resource limits miss a required key.
var ErrIncompleteRestriction = errors.New("incomplete restriction")

const (
	keyCPUModel   = "CPU model"
	keyCPUCores   = "number of CPU cores"
	keyMemorySize = "memory size"
	keyDiskSize   = "disk memory size"
	keyCPUTime    = "CPU time"
	keyWallTime   = "wall time"
)

var requiredLimitKeys = []string{keyCPUModel, keyCPUCores, keyMemorySize, keyDiskSize}

// Resource dimension names used in error messages.
const (
	DimCPUCores = "CPU cores"
	DimMemory   = "memory"
	DimDisk     = "disk"
	DimCPUModel = "CPU model"
)

// ResourceLimits is what a job or a task may consume. An empty CPUModel
// matches any node. Sizes are in bytes.
type ResourceLimits struct {
	CPUModel   string
	CPUCores   int
	MemorySize int64
	DiskSize   int64
	CPUTime    time.Duration
	WallTime   time.Duration
}

func (l ResourceLimits) Validate() error {
	if l.CPUCores < 0 || l.MemorySize < 0 || l.DiskSize < 0 || l.CPUTime < 0 || l.WallTime < 0 {
		return errors.Errorf("resource limits must not be negative: %s", l)
	}
	return nil
}

// Exceeds returns the dimensions in which l asks for more than budget allows.
func (l ResourceLimits) Exceeds(budget ResourceLimits) []string {
	var dims []string
	if l.CPUCores > budget.CPUCores {
		dims = append(dims, DimCPUCores)
	}
	if l.MemorySize > budget.MemorySize {
		dims = append(dims, DimMemory)
	}
	if l.DiskSize > budget.DiskSize {
		dims = append(dims, DimDisk)
	}
	return dims
}

// ModelCompatible reports whether l and budget agree on the CPU model.
// Either side may leave the model empty.
func (l ResourceLimits) ModelCompatible(budget ResourceLimits) bool {
	return l.CPUModel == "" || budget.CPUModel == "" || l.CPUModel == budget.CPUModel
}

func (l ResourceLimits) String() string {
	model := l.CPUModel
	if model == "" {
		model = "any"
	}
	return fmt.Sprintf("{cores: %d, memory: %s, disk: %s, model: %s}",
		l.CPUCores, FormatBytes(l.MemorySize), FormatBytes(l.DiskSize), model)
}

func (l ResourceLimits) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		keyCPUCores:   l.CPUCores,
		keyMemorySize: l.MemorySize,
		keyDiskSize:   l.DiskSize,
		keyCPUModel:   nil,
	}
	if l.CPUModel != "" {
		m[keyCPUModel] = l.CPUModel
	}
	if l.CPUTime > 0 {
		m[keyCPUTime] = l.CPUTime.Seconds()
	}
	if l.WallTime > 0 {
		m[keyWallTime] = l.WallTime.Seconds()
	}
	return json.Marshal(m)
}

// UnmarshalJSON requires every mandatory key to be present. A null CPU model
// means any model; time limits are optional.
func (l *ResourceLimits) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "resource limits must be an object")
	}
	var missing []string
	for _, k := range requiredLimitKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Wrapf(ErrIncompleteRestriction, "missing %q", missing)
	}

	var out ResourceLimits
	var model *string
	if err := json.Unmarshal(raw[keyCPUModel], &model); err != nil {
		return errors.Wrapf(err, "bad %q", keyCPUModel)
	}
	if model != nil {
		out.CPUModel = *model
	}
	if err := json.Unmarshal(raw[keyCPUCores], &out.CPUCores); err != nil {
		return errors.Wrapf(err, "bad %q", keyCPUCores)
	}
	if err := json.Unmarshal(raw[keyMemorySize], &out.MemorySize); err != nil {
		return errors.Wrapf(err, "bad %q", keyMemorySize)
	}
	if err := json.Unmarshal(raw[keyDiskSize], &out.DiskSize); err != nil {
		return errors.Wrapf(err, "bad %q", keyDiskSize)
	}
	for key, dst := range map[string]*time.Duration{keyCPUTime: &out.CPUTime, keyWallTime: &out.WallTime} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var secs *float64
		if err := json.Unmarshal(v, &secs); err != nil {
			return errors.Wrapf(err, "bad %q", key)
		}
		if secs != nil {
			*dst = time.Duration(*secs * float64(time.Second))
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*l = out
	return nil
}

const (
	KiB int64 = 1 << 10
	MiB       = KiB << 10
	GiB       = MiB << 10
)

// GB converts bytes to (binary) gigabytes.
func GB(bytes int64) float64 {
	return float64(bytes) / float64(GiB)
}

func FormatBytes(b int64) string {
	switch {
	case b >= GiB || b <= -GiB:
		return fmt.Sprintf("%.1fGB", GB(b))
	case b >= MiB || b <= -MiB:
		return fmt.Sprintf("%.1fMB", float64(b)/float64(MiB))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
