// Package fetch streams a remote resource into a local destination.
//
// A transfer opens a retrying GET (see internal/http), then reads the body
// in fixed-size chunks. Each chunk is written to the sink and handed to the
// request's progress.Observer before the next chunk is read. The sink is
// one of:
//
//   - a local file, when Request.Destination is set
//   - an in-memory buffer, rewound before it is returned
//   - a gocloud.dev blob object, via Fetcher.Upload
//
// When the server declares a content length, the number of bytes written
// must match it exactly or the transfer fails with ErrSizeMismatch, even
// though the HTTP exchange itself succeeded.
//
// # Usage
//
//	f := fetch.New(fetch.DefaultOptions())
//	outcome := f.DownloadFile(ctx, url, "/data/image.img")
//	if !outcome.OK() {
//	    // outcome.Err describes the failure; see fetch.KindOf
//	}
//
// Stream returns (*Result, error) for callers that prefer Go error flow;
// Fetch and DownloadFile fold the error into an Outcome.
//
// Transfers are synchronous. Callers wanting concurrency run several
// fetches on their own goroutines, each with its own Observer.
package fetch
