/*
Package resilience provides the circuit breaker that guards remote
execution contexts.

# Overview

The remote resolver runs every protocol request through a Breaker. When
the remote side keeps failing, fetches fail fast instead of piling up
behind timeouts, and the inspector records them as remote fetch failures.

# Usage

	breaker := resilience.New("remote-resolver", resilience.Settings{
		Trials:   3,
		Window:   60 * time.Second,
		Cooldown: 15 * time.Second,
		Trip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	resp, err := resilience.Run(ctx, breaker, func(ctx context.Context) (*resty.Response, error) {
		return req.SetContext(ctx).Get(protocol.PropertiesPath(id))
	})

A cancelled caller is not held against the remote side. Requests admitted
before a transition do not count towards the state that follows it.

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Trials requests test whether the remote side recovered

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
