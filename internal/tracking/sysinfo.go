package tracking

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// SystemInfo describes the host the run executes on.
func SystemInfo() map[string]string {
	info := map[string]string{
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"go_version":     runtime.Version(),
		"num_cpu":        strconv.Itoa(runtime.NumCPU()),
		"cpu_brand":      cpuid.CPU.BrandName,
		"cpu_vendor":     cpuid.CPU.VendorString,
		"physical_cores": strconv.Itoa(cpuid.CPU.PhysicalCores),
		"logical_cores":  strconv.Itoa(cpuid.CPU.LogicalCores),
		"cpu_features":   strings.Join(cpuid.CPU.FeatureSet(), ","),
	}
	if host, err := os.Hostname(); err == nil {
		info["hostname"] = host
	}
	return info
}
