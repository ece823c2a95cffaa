// Package client provides the outbound HTTP client shared by the threat
// scanner and the download_url fetcher.
//
// Built on go-resty/resty over a hashicorp/go-retryablehttp transport:
//   - transient network failures and 5xx responses are retried in the transport
//   - a circuit breaker fails fast once a remote keeps failing
//   - an optional token bucket limits the request rate
//   - DialControl and CheckRedirect hooks let callers vet every connection
//     and every redirect hop
//
// Example Usage:
//
//	c := client.NewClient(client.DefaultOptions("threat-scan"))
//	req, err := c.Request(ctx)
//	resp, err := c.Execute(func() (*resty.Response, error) { return req.Get(url) })
package client
