// Package http provides the retrying HTTP client used for transfers.
//
// This package handles:
//   - Per-class retry budgets for connect, read and status failures
//   - A fixed set of retryable status codes (413, 429, 500, 502, 503, 504)
//   - Exponential backoff scaled by a configurable factor, stretched by a
//     longer Retry-After on 413, 429 and 503
//   - Transparent redirect following, capped
//
// Every retry consumes one unit of the total budget and one unit of its
// class budget. Exhausting either ends the attempt sequence with an *Error.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//	resp, err := client.Get(ctx, url)
//	if err != nil {
//	    var herr *http.Error
//	    errors.As(err, &herr) // herr.Kind, herr.Retries
//	}
//	defer resp.Body.Close()
package http
