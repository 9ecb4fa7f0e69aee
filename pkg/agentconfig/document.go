package agentconfig

const (
	// BindAll makes the agent listen on every interface
	BindAll = "0.0.0.0"

	// LocalConsulAddress is the co-located Consul agent the node registers with
	LocalConsulAddress = "127.0.0.1:8500"

	// DefaultFileName is the configuration file written into the config dir
	DefaultFileName = "default.json"
)

// Document is the agent configuration. Optional sections are nil when
// their preconditions do not hold and are then left out of the encoding.
type Document struct {
	Name       string    `json:"name" yaml:"name"`
	Region     string    `json:"region" yaml:"region"`
	Datacenter string    `json:"datacenter" yaml:"datacenter"`
	BindAddr   string    `json:"bind_addr" yaml:"bind_addr"`
	RetryJoin  []string  `json:"retry_join,omitempty" yaml:"retry_join,omitempty"`
	Advertise  Advertise `json:"advertise" yaml:"advertise"`
	Consul     Consul    `json:"consul" yaml:"consul"`
	Server     *Server   `json:"server,omitempty" yaml:"server,omitempty"`
	Client     *Client   `json:"client,omitempty" yaml:"client,omitempty"`
	Vault      *Vault    `json:"vault,omitempty" yaml:"vault,omitempty"`
}

// Advertise holds the addresses other nodes use to reach this one
type Advertise struct {
	HTTP string `json:"http" yaml:"http"`
	RPC  string `json:"rpc" yaml:"rpc"`
	Serf string `json:"serf" yaml:"serf"`
}

// Consul points the agent at its service catalog
type Consul struct {
	Address string `json:"address" yaml:"address"`
}

// Server enables the control-plane role
type Server struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	BootstrapExpect int  `json:"bootstrap_expect" yaml:"bootstrap_expect"`
}

// Client enables the workload-executing role
type Client struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Vault points the agent at a secrets backend
type Vault struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}
