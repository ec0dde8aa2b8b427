// Package config defines the format-agnostic definition model (jobs and
// pipelines as written by the user) and the Loader interface implemented by
// the HCL and YAML adapters.
//
// Values in the model are raw: durations are strings and publisher or trigger
// kinds are plain names. The model package turns them into validated, typed
// domain objects.
package config
