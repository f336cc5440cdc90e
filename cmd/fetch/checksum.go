package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/imager-service/worker/internal/checksum"
)

// runChecksum prints or verifies the digest of a local file.
func runChecksum(args []string) int {
	fs := flag.NewFlagSet("checksum", flag.ContinueOnError)

	file := fs.String("file", "", "File to hash (required)")
	algo := fs.String("algo", checksum.DefaultAlgorithm, "Algorithm: "+strings.Join(checksum.Algorithms(), ", "))
	expect := fs.String("expect", "", "Expected hex digest; a mismatch exits with a validation error")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: fetch checksum [options]

Compute the digest of a local file, or verify it against -expect.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	return reportChecksum(*file, *algo, *expect)
}

// reportChecksum prints the digest of path, or verifies it against expect
// when set.
func reportChecksum(path, algo, expect string) int {
	if expect != "" {
		ok, err := checksum.Verify(path, algo, expect)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return checksumExitCode(err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: checksum mismatch for %s\n", path)
			return ExitValidationFailed
		}
		fmt.Printf("%s: OK\n", path)
		return ExitSuccess
	}

	_, digest, err := checksum.Sum(path, algo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return checksumExitCode(err)
	}
	fmt.Printf("%s  %s\n", digest, path)
	return ExitSuccess
}

func checksumExitCode(err error) int {
	if errors.Is(err, checksum.ErrUnsupportedAlgorithm) {
		return ExitInvalidArgs
	}
	return ExitGeneralError
}
