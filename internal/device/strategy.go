package device

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// FdiskPath is the partition-table utility used by the fdisk strategy.
var FdiskPath = "/sbin/fdisk"

// PartitionsPath is the kernel partition table read on linux.
var PartitionsPath = "/proc/partitions"

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Strategy is one way of finding a device's capacity.
type Strategy struct {
	// Name identifies the strategy in logs.
	Name string

	// GOOS restricts the strategy to one operating system. Empty means all.
	GOOS string

	// Read fetches the raw source text for device.
	Read func(ctx context.Context, r Runner, device string) ([]byte, error)

	// Parse extracts the capacity in bytes from the source text.
	Parse func(device string, out []byte) (int64, bool)
}

// DefaultStrategies returns the built-in strategies in probe order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "fdisk",
			Read: func(ctx context.Context, r Runner, device string) ([]byte, error) {
				return r.Run(ctx, FdiskPath, "-l", device)
			},
			Parse: ParseFdisk,
		},
		{
			Name: "diskutil",
			GOOS: "darwin",
			Read: func(ctx context.Context, r Runner, device string) ([]byte, error) {
				return r.Run(ctx, "diskutil", "list", "-plist", device)
			},
			Parse: ParseDiskutilPlist,
		},
	}
}

// PartitionsStrategy reads the 1 KiB block count of a device from
// /proc/partitions on linux. It is not part of DefaultStrategies; pass it
// through WithStrategies to fall back on it when fdisk is unavailable.
func PartitionsStrategy() Strategy {
	return Strategy{
		Name: "partitions",
		GOOS: "linux",
		Read: func(ctx context.Context, _ Runner, _ string) ([]byte, error) {
			return os.ReadFile(PartitionsPath)
		},
		Parse: ParseProcPartitions,
	}
}

var fdiskBytesRe = regexp.MustCompile(`([0-9]+) bytes,`)

// ParseFdisk extracts the size from the first line of `fdisk -l` output:
//
//	Disk /dev/sdb: 29.72 GiB, 31914983424 bytes, 62333952 sectors
func ParseFdisk(_ string, out []byte) (int64, bool) {
	line, _, _ := bytes.Cut(out, []byte("\n"))
	m := fdiskBytesRe.FindSubmatch(line)
	if m == nil {
		return 0, false
	}
	return parsePositive(string(m[1]))
}

var plistIntegerRe = regexp.MustCompile(`^\t\t\t<integer>(\d+)</integer>`)

// ParseDiskutilPlist returns the first integer at the device entry depth of
// `diskutil list -plist` output, which is the whole-disk size.
func ParseDiskutilPlist(_ string, out []byte) (int64, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if m := plistIntegerRe.FindStringSubmatch(scanner.Text()); m != nil {
			return parsePositive(m[1])
		}
	}
	return 0, false
}

// ParseProcPartitions finds device in /proc/partitions and converts its
// 1 KiB block count to bytes.
func ParseProcPartitions(device string, out []byte) (int64, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 {
			continue
		}
		if "/dev/"+fields[3] != device {
			continue
		}
		blocks, ok := parsePositive(fields[2])
		if !ok {
			return 0, false
		}
		return blocks * 1024, true
	}
	return 0, false
}

func parsePositive(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
