package agentconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

// RetryJoinEntry formats a cloud auto-join expression for the given tag pair
func RetryJoinEntry(tagKey, tagValue string) string {
	return fmt.Sprintf("provider=aws tag_key=%s tag_value=%s", tagKey, tagValue)
}

// Synthesize builds the configuration document. It has no side effects:
// warnings are returned for the caller to log, and an invalid topology is
// rejected before anything is built.
func Synthesize(topology types.ClusterTopology, identity types.NodeIdentity, vaultAddress string) (*Document, []string, error) {
	if err := topology.Validate(); err != nil {
		return nil, nil, err
	}

	var warnings []string

	datacenter := topology.Datacenter
	if datacenter == "" {
		datacenter = identity.AvailabilityZone
	}

	doc := &Document{
		Name:       identity.InstanceID,
		Region:     identity.Region,
		Datacenter: datacenter,
		BindAddr:   BindAll,
	}

	if topology.TagDiscoveryEnabled() {
		doc.RetryJoin = []string{RetryJoinEntry(topology.TagKey, topology.TagValue)}
	} else {
		warnings = append(warnings, "cluster tag key or value is empty; "+
			"the agent will start without automatic peer discovery")
	}

	if topology.Roles.Has(types.RoleServer) {
		doc.Server = &Server{Enabled: true, BootstrapExpect: topology.ExpectedServerCount}
	}

	if topology.Roles.Has(types.RoleClient) {
		doc.Client = &Client{Enabled: true}
	}

	// The address is embedded as given; no URL validation is applied
	if vaultAddress != "" {
		doc.Vault = &Vault{Enabled: true, Address: vaultAddress}
	}

	doc.Advertise = Advertise{
		HTTP: identity.PrivateIP,
		RPC:  identity.PrivateIP,
		Serf: identity.PrivateIP,
	}
	doc.Consul = Consul{Address: LocalConsulAddress}

	return doc, warnings, nil
}

// Validate checks the fields the agent refuses to start without
func (d *Document) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", d.Name},
		{"region", d.Region},
		{"datacenter", d.Datacenter},
		{"bind_addr", d.BindAddr},
		{"advertise.http", d.Advertise.HTTP},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("configuration field %q is empty", r.field)
		}
	}
	if d.Server != nil && d.Server.BootstrapExpect <= 0 {
		return fmt.Errorf("server.bootstrap_expect must be positive, got %d", d.Server.BootstrapExpect)
	}
	return nil
}

// Encode serializes the document as indented JSON. The output is checked
// to be well-formed before it is returned.
func Encode(d *Document) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	data := buf.Bytes()
	if !json.Valid(data) {
		return nil, fmt.Errorf("encoded configuration is not valid JSON")
	}
	return data, nil
}

// EncodeYAML serializes the document as YAML for display
func EncodeYAML(d *Document) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	return buf.Bytes(), nil
}
