// Package registry holds the job definitions of a gridci workspace.
//
// The Registry is populated once at startup from the loaded definitions and
// then frozen. Pipelines are validated against it, and during execution it is
// read-only, so concurrent jobs can look definitions up without locking
// against writers.
package registry
