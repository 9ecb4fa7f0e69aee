package types

import (
	"fmt"
	"sort"
	"strings"
)

// NodeIdentity identifies the instance a run is configuring
type NodeIdentity struct {
	InstanceID       string
	PrivateIP        string
	AvailabilityZone string
	Region           string
}

// Validate reports which identity fields came back empty
func (n NodeIdentity) Validate() error {
	var missing []string
	if n.InstanceID == "" {
		missing = append(missing, "instance id")
	}
	if n.PrivateIP == "" {
		missing = append(missing, "private ip")
	}
	if n.AvailabilityZone == "" {
		missing = append(missing, "availability zone")
	}
	if n.Region == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete node identity: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Role defines how a node participates in the cluster
type Role string

const (
	RoleServer Role = "server" // Control-plane member
	RoleClient Role = "client" // Workload-executing member
)

// RoleSet is the set of roles a node runs
type RoleSet map[Role]bool

// NewRoleSet builds a set from the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}

// Has reports whether the role is in the set
func (s RoleSet) Has(r Role) bool {
	return s[r]
}

// Empty reports whether no role is set
func (s RoleSet) Empty() bool {
	for _, enabled := range s {
		if enabled {
			return false
		}
	}
	return true
}

// String renders the set in a stable order, e.g. "client,server"
func (s RoleSet) String() string {
	var names []string
	for r, enabled := range s {
		if enabled {
			names = append(names, string(r))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// ClusterTopology describes the node's role and how it finds its peers
type ClusterTopology struct {
	Roles               RoleSet
	ExpectedServerCount int // Required when the server role is set
	TagKey              string
	TagValue            string
	Datacenter          string // Empty means "use the availability zone"
}

// Validate checks the role invariants. Tag pairing is not validated here:
// a half-specified tag pair disables discovery with a warning instead.
func (t ClusterTopology) Validate() error {
	if t.Roles.Empty() {
		return NewError(KindInput, "validate topology", fmt.Errorf("at least one of %s or %s must be set", RoleServer, RoleClient))
	}
	if t.Roles.Has(RoleServer) && t.ExpectedServerCount <= 0 {
		return NewError(KindInput, "validate topology", fmt.Errorf("the %s role requires a positive expected server count", RoleServer))
	}
	if t.ExpectedServerCount < 0 {
		return NewError(KindInput, "validate topology", fmt.Errorf("expected server count must not be negative, got %d", t.ExpectedServerCount))
	}
	return nil
}

// TagDiscoveryEnabled reports whether both tag fields are set
func (t ClusterTopology) TagDiscoveryEnabled() bool {
	return t.TagKey != "" && t.TagValue != ""
}
