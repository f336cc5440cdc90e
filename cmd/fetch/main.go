package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitSourceError      = 3
	ExitStorageError     = 5
	ExitValidationFailed = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "download":
		return runDownload(cmdArgs)
	case "upload":
		return runUpload(cmdArgs)
	case "probe":
		return runProbe(cmdArgs)
	case "checksum":
		return runChecksum(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: fetch <command> [options]

Commands:
  download  Fetch an HTTP URL into a local file with retries and progress
  upload    Fetch an HTTP URL into an object storage bucket
  probe     Report the raw byte capacity of a storage device
  checksum  Compute or verify the digest of a local file

Run 'fetch <command> -h' for command-specific help.`)
}
