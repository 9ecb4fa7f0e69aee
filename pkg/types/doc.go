/*
Package types defines the values passed between the bootstrap stages.

NodeIdentity is resolved once per run from the instance metadata service.
ClusterTopology and InstallationPlan are built from flags and passed by value
into the synthesis and install code; none of them are mutated after
validation.

Errors returned across package boundaries carry a Kind (input, environment,
metadata unavailable, transient, post-condition) so the command layer can
decide whether to print usage and how to word the failure.
*/
package types
