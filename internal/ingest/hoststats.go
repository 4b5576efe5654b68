package ingest

import (
	"log"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/velden/hubwatch/internal/health"
)

// diskPressurePct is the used-percent above which the host check raises
// the disk_pressure issue.
const diskPressurePct = 95.0

// HostStats samples local machine telemetry and feeds it into the health
// state as one more source. Nothing is persisted: like the rest of the
// health state it reflects the current process only.
type HostStats struct {
	state *health.State
}

// NewHostStats wires the host sampling check.
func NewHostStats(hs *health.State) *HostStats {
	return &HostStats{state: hs}
}

// Sample collects one CPU/memory/disk reading. Collection failures mark
// the host check unknown and are otherwise ignored — local telemetry is
// advisory, never a reason to degrade ingestion.
func (h *HostStats) Sample() {
	cpuPct := 0.0
	if pcts, err := cpu.Percent(250*time.Millisecond, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}

	memPct := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}

	diskPct, err := maxDiskUsage()
	if err != nil {
		log.Printf("[host] disk sample: %v", err)
		h.state.SetCheck(health.SourceHost, health.CheckUnknown)
		return
	}

	if diskPct >= diskPressurePct {
		h.state.RaiseIssue(health.IssueDiskPressure)
	} else {
		h.state.ClearIssue(health.IssueDiskPressure)
	}

	h.state.SetCheck(health.SourceHost, health.CheckOK)
	h.state.MarkActive(health.SourceHost)

	log.Printf("[host] cpu=%.0f%% mem=%.0f%% disk=%.0f%%", cpuPct, memPct, diskPct)
}

// maxDiskUsage returns the highest used-percent across mounted
// partitions, falling back to the root partition.
func maxDiskUsage() (float64, error) {
	parts, err := disk.Partitions(false)
	if err != nil || len(parts) == 0 {
		usage, uerr := disk.Usage("/")
		if uerr != nil {
			return 0, uerr
		}
		return usage.UsedPercent, nil
	}

	max := 0.0
	for _, p := range parts {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		if usage.UsedPercent > max {
			max = usage.UsedPercent
		}
	}
	return max, nil
}
