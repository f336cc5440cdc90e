package device

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const fdiskOutput = `Disk /dev/sdb: 29.72 GiB, 31914983424 bytes, 62333952 sectors
Disk model: Ultra Fit
Units: sectors of 1 * 512 = 512 bytes
Sector size (logical/physical): 512 bytes / 512 bytes
`

const diskutilOutput = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
	"<plist version=\"1.0\">\n" +
	"<dict>\n" +
	"\t<key>AllDisksAndPartitions</key>\n" +
	"\t<array>\n" +
	"\t\t<dict>\n" +
	"\t\t\t<key>Content</key>\n" +
	"\t\t\t<string>FDisk_partition_scheme</string>\n" +
	"\t\t\t<key>DeviceIdentifier</key>\n" +
	"\t\t\t<string>disk4</string>\n" +
	"\t\t\t<key>Partitions</key>\n" +
	"\t\t\t<array>\n" +
	"\t\t\t\t<dict>\n" +
	"\t\t\t\t\t<key>Size</key>\n" +
	"\t\t\t\t\t<integer>268435456</integer>\n" +
	"\t\t\t\t</dict>\n" +
	"\t\t\t</array>\n" +
	"\t\t\t<key>Size</key>\n" +
	"\t\t\t<integer>63864569856</integer>\n" +
	"\t\t</dict>\n" +
	"\t</array>\n" +
	"</dict>\n" +
	"</plist>\n"

const partitionsOutput = `major minor  #blocks  name

   8        0  976762584 sda
   8        1     524288 sda1
   8       16   31166976 sdb
`

func TestParseFdisk(t *testing.T) {
	size, ok := ParseFdisk("/dev/sdb", []byte(fdiskOutput))
	if !ok || size != 31914983424 {
		t.Errorf("ParseFdisk = (%d, %v), want (31914983424, true)", size, ok)
	}

	// Only the first line is considered.
	if _, ok := ParseFdisk("/dev/sdb", []byte("fdisk: cannot open /dev/sdb\n1024 bytes, 2 sectors\n")); ok {
		t.Error("expected no match when the first line has no size")
	}
	if _, ok := ParseFdisk("/dev/sdb", nil); ok {
		t.Error("expected no match for empty output")
	}
}

func TestParseDiskutilPlist(t *testing.T) {
	size, ok := ParseDiskutilPlist("/dev/disk4", []byte(diskutilOutput))
	if !ok || size != 63864569856 {
		t.Errorf("ParseDiskutilPlist = (%d, %v), want (63864569856, true)", size, ok)
	}

	if _, ok := ParseDiskutilPlist("/dev/disk4", []byte("<plist></plist>")); ok {
		t.Error("expected no match without an integer entry")
	}
}

func TestParseProcPartitions(t *testing.T) {
	size, ok := ParseProcPartitions("/dev/sdb", []byte(partitionsOutput))
	if !ok || size != 31166976*1024 {
		t.Errorf("ParseProcPartitions = (%d, %v), want (%d, true)", size, ok, 31166976*1024)
	}

	if _, ok := ParseProcPartitions("/dev/sdz", []byte(partitionsOutput)); ok {
		t.Error("expected no match for an absent device")
	}
}

type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return []byte(f.outputs[name]), nil
}

func TestCapacityUsesFdiskFirst(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{FdiskPath: fdiskOutput}}
	p := NewProber(WithRunner(runner), WithGOOS("darwin"))

	if got := p.Capacity(context.Background(), "/dev/sdb"); got != 31914983424 {
		t.Errorf("Capacity = %d, want 31914983424", got)
	}
	if len(runner.calls) != 1 {
		t.Errorf("expected a single command, got %v", runner.calls)
	}
}

func TestCapacityFallsBackToDiskutilOnDarwin(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"diskutil": diskutilOutput},
		errs:    map[string]error{FdiskPath: &exec.Error{Name: FdiskPath, Err: exec.ErrNotFound}},
	}
	core, logs := observer.New(zap.WarnLevel)
	p := NewProber(WithRunner(runner), WithGOOS("darwin"), WithLogger(zap.New(core)))

	if got := p.Capacity(context.Background(), "/dev/disk4"); got != 63864569856 {
		t.Errorf("Capacity = %d, want 63864569856", got)
	}

	entries := logs.FilterMessage("capacity probe failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 logged failure, got %d", len(entries))
	}
	if cause := entries[0].ContextMap()["cause"]; cause != "launch" {
		t.Errorf("expected launch cause, got %v", cause)
	}
}

func TestCapacitySkipsDiskutilOffDarwin(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"diskutil": diskutilOutput},
		errs:    map[string]error{FdiskPath: errors.New("boom")},
	}
	p := NewProber(WithRunner(runner), WithGOOS("windows"))

	if got := p.Capacity(context.Background(), "/dev/disk4"); got != Unknown {
		t.Errorf("Capacity = %d, want Unknown", got)
	}
	for _, c := range runner.calls {
		if c == "diskutil" {
			t.Error("diskutil must not run off darwin")
		}
	}
}

func TestCapacityAllStrategiesFail(t *testing.T) {
	failing := func(name string) Strategy {
		return Strategy{
			Name: name,
			Read: func(context.Context, Runner, string) ([]byte, error) {
				return []byte("garbage"), nil
			},
			Parse: func(string, []byte) (int64, bool) { return 0, false },
		}
	}
	p := NewProber(WithStrategies(failing("a"), failing("b")))

	if got := p.Capacity(context.Background(), "/dev/nothing"); got != Unknown {
		t.Errorf("Capacity = %d, want 0", got)
	}
}

func TestCapacityWithRealRunnerOnMissingDevice(t *testing.T) {
	savedPartitions, savedFdisk := PartitionsPath, FdiskPath
	t.Cleanup(func() {
		PartitionsPath, FdiskPath = savedPartitions, savedFdisk
	})
	PartitionsPath = t.TempDir() + "/partitions-missing"
	FdiskPath = t.TempDir() + "/fdisk-missing"

	if got := Capacity(context.Background(), "/dev/does-not-exist"); got != Unknown {
		t.Errorf("Capacity = %d, want 0", got)
	}
}

func TestFits(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{FdiskPath: fdiskOutput}}
	p := NewProber(WithRunner(runner), WithGOOS("linux"))

	fits, known := p.Fits(context.Background(), "/dev/sdb", 16_000_000_000)
	if !known || !fits {
		t.Errorf("Fits(16GB) = (%v, %v), want (true, true)", fits, known)
	}

	fits, known = p.Fits(context.Background(), "/dev/sdb", 32_000_000_000)
	if !known || fits {
		t.Errorf("Fits(32GB) = (%v, %v), want (false, true)", fits, known)
	}

	unknown := NewProber(WithStrategies())
	fits, known = unknown.Fits(context.Background(), "/dev/sdb", 1)
	if known || fits {
		t.Errorf("Fits on unknown capacity = (%v, %v), want (false, false)", fits, known)
	}
}

func TestFailureCause(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&exec.Error{Name: "fdisk", Err: exec.ErrNotFound}, "launch"},
		{&exec.ExitError{}, "exit"},
		{context.Canceled, "canceled"},
		{errors.New("permission denied"), "read"},
	}
	for _, tt := range tests {
		if got := failureCause(tt.err); got != tt.want {
			t.Errorf("failureCause(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDefaultStrategyOrder(t *testing.T) {
	var names []string
	for _, s := range DefaultStrategies() {
		names = append(names, s.Name)
	}
	if got := strings.Join(names, ","); got != "fdisk,diskutil" {
		t.Errorf("strategy order = %s", got)
	}
}

func TestPackageCapacityMissingDevice(t *testing.T) {
	if got := Capacity(context.Background(), "/dev/fetch-test-nonexistent"); got != Unknown {
		t.Errorf("Capacity = %d, want Unknown", got)
	}
}

func TestCapacityFdiskFailureOnLinuxIsUnknown(t *testing.T) {
	saved := PartitionsPath
	t.Cleanup(func() { PartitionsPath = saved })
	PartitionsPath = writePartitions(t)

	runner := &fakeRunner{errs: map[string]error{FdiskPath: errors.New("Permission denied")}}
	p := NewProber(WithRunner(runner), WithGOOS("linux"))

	if got := p.Capacity(context.Background(), "/dev/sdb"); got != Unknown {
		t.Errorf("Capacity = %d, want Unknown", got)
	}
}

func TestCapacityPartitionsStrategyOptIn(t *testing.T) {
	saved := PartitionsPath
	t.Cleanup(func() { PartitionsPath = saved })
	PartitionsPath = writePartitions(t)

	runner := &fakeRunner{errs: map[string]error{FdiskPath: errors.New("Permission denied")}}
	p := NewProber(
		WithRunner(runner),
		WithGOOS("linux"),
		WithStrategies(append(DefaultStrategies(), PartitionsStrategy())...),
	)

	if got := p.Capacity(context.Background(), "/dev/sdb"); got != 31914983424 {
		t.Errorf("Capacity = %d, want 31914983424", got)
	}
}

func writePartitions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "partitions")
	if err := os.WriteFile(path, []byte(partitionsOutput), 0644); err != nil {
		t.Fatalf("write partitions: %v", err)
	}
	return path
}
