// Package types defines the collection catalog entities, the store
// interfaces, and the standard errors shared by every backend.
//
// A catalog is a forest of collection trees encoded with nested sets: every
// tree position carries a (left, right) interval and a tree identifier, and
// interval containment is the only source of structural truth.
package types
