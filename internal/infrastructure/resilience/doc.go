/*
Package resilience provides a circuit breaker for outbound calls.

The breaker guards the remote dependencies of a session: the threat-scan API
and arbitrary origins fetched by download_url. When a dependency keeps
failing, calls fail fast with ErrCircuitOpen instead of tying up a session's
transfer goroutines.

# Usage

	breaker := resilience.New("threat-scan", resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	err := breaker.Do(func() error {
		_, err := client.R().Get(url)
		return err
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open
*/
package resilience
