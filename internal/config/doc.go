// Package config defines configuration structures for the fetch CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (FETCH_ prefix)
//   - YAML configuration file
//
// Later sources override earlier ones: defaults, then file, then
// environment, then flags.
//
// # Structure
//
//	type Config struct {
//	    URL       string
//	    Output    string
//	    Bucket    string
//	    Object    string
//	    ChunkSize int64
//	    Progress  string
//	    Checksum  string
//	    Device    string
//	    Timeout   time.Duration
//	    Retry     RetryConfig
//	    Log       LogConfig
//	}
//
// # Example file
//
//	url: https://example.org/images/kiwix.img
//	output: /data/kiwix.img
//	chunk_size: 1MiB
//	progress: dots
//	retry:
//	  total: 6
//	  status: 2
//	  backoff_factor: 30s
//	  status_codes: [413, 429, 500, 502, 503, 504]
//	log:
//	  level: debug
package config
