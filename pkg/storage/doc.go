/*
Package storage keeps a local ledger of bootstrap invocations in a BoltDB
file, by default /var/lib/nomad-bootstrap/bootstrap.db.

Each install and run appends a Record to its own bucket ("installs" or
"runs") keyed by a time-ordered UUID, so iterating a bucket walks history
oldest first and LatestRecord is a single cursor seek. Records hold the
outcome, the classified error if any, and what was installed or written.

The ledger is advisory. Callers log failures to open or write it and carry
on; provisioning never depends on its contents.
*/
package storage
