package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/imager-service/worker/internal/device"
	"github.com/imager-service/worker/internal/logger"
	"github.com/imager-service/worker/internal/progress"
)

// runProbe reports the capacity of a device and optionally whether a
// given size fits on it.
func runProbe(args []string) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)

	dev := fs.String("device", os.Getenv("FETCH_DEVICE"), "Device path, e.g. /dev/sdb (required)")
	need := fs.String("need", "", "Size that must fit on the device, e.g. 8GiB")
	usePartitions := fs.Bool("proc-partitions", false, "Fall back to /proc/partitions when fdisk fails (linux)")
	logLevel := fs.String("log-level", "warn", "Log level: debug, info, warn, error")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: fetch probe [options]

Print the raw byte capacity of a storage device. Exits with a validation
error when -need is set and does not fit.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	if *dev == "" {
		fmt.Fprintln(os.Stderr, "Error: -device is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	var needBytes int64
	if *need != "" {
		n, err := progress.ParseBytes(*need)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid size: %v\n", err)
			return ExitInvalidArgs
		}
		needBytes = n
	}

	log, err := logger.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	opts := []device.Option{device.WithLogger(log)}
	if *usePartitions {
		opts = append(opts, device.WithStrategies(append(device.DefaultStrategies(), device.PartitionsStrategy())...))
	}
	capacity := device.NewProber(opts...).Capacity(ctx, *dev)
	if capacity == device.Unknown {
		fmt.Fprintf(os.Stderr, "Error: capacity of %s is unknown\n", *dev)
		return ExitGeneralError
	}
	fmt.Printf("%d\t%s\t%s\n", capacity, progress.FormatBytes(capacity), *dev)

	if *need != "" && needBytes > capacity {
		fmt.Fprintf(os.Stderr, "Error: %s does not fit on %s (%s)\n",
			progress.FormatBytes(needBytes), *dev, progress.FormatBytes(capacity))
		return ExitValidationFailed
	}
	return ExitSuccess
}
