// Package progress reports transfer progress as chunks arrive.
//
// Fetchers drive an Observer synchronously, once per chunk. Two
// implementations are provided:
//
//   - Reporter renders a fixed-width dot bar and rewrites it in place.
//   - Bar renders an interactive terminal bar with byte counts.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{Output: os.Stdout})
//	// the empty 0% bar is already on screen here
//	reporter.OnChunk(n, chunkSize, totalSize)
//
// # Output Format
//
//	[.............................                             ] 50%\r
//	[..........................................................] 100%\n
//
// A total of UnknownSize renders the line "unknown size\n".
//
// Observers hold per-transfer state and must not be shared between
// concurrent transfers.
package progress
