/*
Package health waits for a freshly restarted agent to report healthy.

Two checkers are provided. HTTPChecker polls the agent's HTTP health
endpoint and understands the per-role JSON body it returns. TCPChecker
only confirms that a port accepts connections, which is enough for the
server RPC listener.

WaitHealthy runs a set of checkers on a fixed interval until every one of
them has passed SuccessThreshold times in a row, or the deadline expires:

	checker := health.NewHTTPChecker(health.AgentHealthURL)
	err := health.WaitHealthy(ctx, health.DefaultWaitConfig(), checker)

A timeout is reported as a post-condition error, since the install and
configuration steps all completed but the agent never came up.
*/
package health
