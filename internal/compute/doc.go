// Package compute evaluates plugs lazily. A Cache hashes a plug in a context
// from the hashes of everything the plug depends on, and memoizes computed
// values by that hash. Dirtying a plug only invalidates what the Cache holds
// for it; nothing is recomputed until a value is requested again.
package compute
