// Package consul checks that the local Consul agent the generated
// configuration points at is reachable.
package consul

import (
	"context"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout bounds a single agent probe
const DefaultTimeout = 5 * time.Second

// AgentInfo is the subset of /v1/agent/self the preflight reports
type AgentInfo struct {
	NodeName   string
	Datacenter string
	Version    string
}

// CheckAgent queries the agent at addr ("host:port" or a URL)
func CheckAgent(ctx context.Context, addr string) (*AgentInfo, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cfg.HttpClient = cleanhttp.DefaultClient()
	cfg.HttpClient.Timeout = DefaultTimeout

	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	type result struct {
		self map[string]map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		self, err := cli.Agent().Self()
		done <- result{self: self, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("consul agent at %s: %w", cfg.Address, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("consul agent at %s unreachable: %w", cfg.Address, r.err)
		}
		return parseSelf(r.self), nil
	}
}

func parseSelf(self map[string]map[string]interface{}) *AgentInfo {
	info := &AgentInfo{}
	config := self["Config"]
	if config == nil {
		return info
	}
	info.NodeName, _ = config["NodeName"].(string)
	info.Datacenter, _ = config["Datacenter"].(string)
	info.Version, _ = config["Version"].(string)
	return info
}
