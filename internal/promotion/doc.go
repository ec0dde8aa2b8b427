// Package promotion resolves the artifacts of a successful build and publishes
// them to a release repository.
//
// The promoted build is always named explicitly: by the build number the
// pipeline's build stage produced in the same run, or by the number given on
// the command line. There is no "latest successful build" lookup.
package promotion
