package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// SystemOptions are decoded from a system source's params.
type SystemOptions struct {
	// DiskPath is the mount whose usage is reported.
	DiskPath string `mapstructure:"disk_path"`
}

// hostProbe fills fields for one metric family.
type hostProbe struct {
	name string
	read func(ctx context.Context, fields map[string]snapshot.Value) error
}

// SystemCollector reports host metrics of the machine running pgpulse.
type SystemCollector struct {
	id     snapshot.SourceID
	opts   SystemOptions
	probes []hostProbe
	health *healthTracker
	now    func() time.Time
}

// NewSystemCollector builds a system collector backed by gopsutil.
func NewSystemCollector(src config.SourceConfig) (*SystemCollector, error) {
	opts := SystemOptions{DiskPath: "/"}
	if err := src.DecodeParams(&opts); err != nil {
		return nil, err
	}
	id := snapshot.SourceID(src.ID)
	if id == "" {
		id = snapshot.SourceSystem
	}
	c := &SystemCollector{
		id:     id,
		opts:   opts,
		health: newHealthTracker(id),
		now:    time.Now,
	}
	c.probes = c.defaultProbes()
	return c, nil
}

func (c *SystemCollector) Identify() snapshot.SourceID { return c.id }

func (c *SystemCollector) Health() Health { return c.health.get() }

// Fetch runs every probe. Failed probes degrade the reading; the fetch fails
// only when no probe succeeds.
func (c *SystemCollector) Fetch(ctx context.Context) (snapshot.SourceReading, error) {
	reading := newReading(c.now())

	var failed []string
	for _, p := range c.probes {
		if err := ctx.Err(); err != nil {
			c.health.failure(errors.FetchTransient(string(c.id), err))
			return snapshot.SourceReading{}, errors.FetchTransient(string(c.id), err)
		}
		if err := p.read(ctx, reading.Fields); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", p.name, err))
		}
	}

	if len(failed) == len(c.probes) && len(c.probes) > 0 {
		err := errors.FetchTransient(string(c.id), fmt.Errorf("%s", strings.Join(failed, "; ")))
		c.health.failure(err)
		return snapshot.SourceReading{}, err
	}
	if len(failed) > 0 {
		reading.Status = snapshot.StatusDegraded
		reading.Error = strings.Join(failed, "; ")
	}
	c.health.success(reading.FetchedAt)
	return reading, nil
}

func (c *SystemCollector) defaultProbes() []hostProbe {
	return []hostProbe{
		{name: "cpu", read: func(ctx context.Context, fields map[string]snapshot.Value) error {
			percents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				return err
			}
			if len(percents) > 0 {
				fields["cpu.percent"] = snapshot.Gauge(percents[0])
			}
			if n, err := cpu.CountsWithContext(ctx, true); err == nil {
				fields["cpu.count"] = snapshot.Gauge(float64(n))
			}
			return nil
		}},
		{name: "memory", read: func(ctx context.Context, fields map[string]snapshot.Value) error {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return err
			}
			fields["memory.total_bytes"] = snapshot.Gauge(float64(vm.Total))
			fields["memory.used_bytes"] = snapshot.Gauge(float64(vm.Used))
			fields["memory.available_bytes"] = snapshot.Gauge(float64(vm.Available))
			fields["memory.used_percent"] = snapshot.Gauge(vm.UsedPercent)
			if sm, err := mem.SwapMemoryWithContext(ctx); err == nil {
				fields["swap.used_bytes"] = snapshot.Gauge(float64(sm.Used))
				fields["swap.used_percent"] = snapshot.Gauge(sm.UsedPercent)
			}
			return nil
		}},
		{name: "load", read: func(ctx context.Context, fields map[string]snapshot.Value) error {
			avg, err := load.AvgWithContext(ctx)
			if err != nil {
				return err
			}
			fields["load.1"] = snapshot.Gauge(avg.Load1)
			fields["load.5"] = snapshot.Gauge(avg.Load5)
			fields["load.15"] = snapshot.Gauge(avg.Load15)
			return nil
		}},
		{name: "network", read: func(ctx context.Context, fields map[string]snapshot.Value) error {
			counters, err := net.IOCountersWithContext(ctx, false)
			if err != nil {
				return err
			}
			if len(counters) > 0 {
				fields["network.bytes_sent"] = snapshot.Counter(int64(counters[0].BytesSent))
				fields["network.bytes_recv"] = snapshot.Counter(int64(counters[0].BytesRecv))
			}
			return nil
		}},
		{name: "disk", read: func(ctx context.Context, fields map[string]snapshot.Value) error {
			usage, err := disk.UsageWithContext(ctx, c.opts.DiskPath)
			if err != nil {
				return err
			}
			fields["disk.path"] = snapshot.Text(usage.Path)
			fields["disk.total_bytes"] = snapshot.Gauge(float64(usage.Total))
			fields["disk.used_bytes"] = snapshot.Gauge(float64(usage.Used))
			fields["disk.used_percent"] = snapshot.Gauge(usage.UsedPercent)
			if ioStats, err := disk.IOCountersWithContext(ctx); err == nil {
				var readBytes, writeBytes uint64
				for _, stat := range ioStats {
					readBytes += stat.ReadBytes
					writeBytes += stat.WriteBytes
				}
				fields["disk.read_bytes"] = snapshot.Counter(int64(readBytes))
				fields["disk.write_bytes"] = snapshot.Counter(int64(writeBytes))
			}
			return nil
		}},
		{name: "uptime", read: func(ctx context.Context, fields map[string]snapshot.Value) error {
			uptime, err := host.UptimeWithContext(ctx)
			if err != nil {
				return err
			}
			fields["host.uptime_seconds"] = snapshot.Gauge(float64(uptime))
			return nil
		}},
	}
}
