// Package cluster provides the static cluster membership view, node
// configuration and the shared leadership state.
//
// This package handles:
//   - Loading and validating node configuration (YAML or the legacy line format)
//   - The immutable membership table of peer id to address
//   - LeadershipState, owned by a single goroutine so that the dispatcher and the
//     failure detector never observe a torn update
package cluster
