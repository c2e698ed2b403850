package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// HostInfo identifies the sampled machine. It is logged once when a monitor
// starts so log files from different hosts can be told apart.
type HostInfo struct {
	Hostname string
	Platform string
	Version  string
	Kernel   string
	Arch     string
}

// ReadHostInfo queries the OS name, version and kernel through gopsutil.
func ReadHostInfo(ctx context.Context) (HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to read host info: %w", err)
	}
	return HostInfo{
		Hostname: info.Hostname,
		Platform: info.Platform,
		Version:  info.PlatformVersion,
		Kernel:   info.KernelVersion,
		Arch:     info.KernelArch,
	}, nil
}

// Fields returns the host description as log fields.
func (h HostInfo) Fields() []zap.Field {
	return []zap.Field{
		zap.String("hostname", h.Hostname),
		zap.String("platform", h.Platform),
		zap.String("platform_version", h.Version),
		zap.String("kernel", h.Kernel),
		zap.String("arch", h.Arch),
	}
}
