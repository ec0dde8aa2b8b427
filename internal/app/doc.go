// Package app contains the core application logic. It loads definitions,
// validates every pipeline, wires stores, artifact backends and the executor
// from runtime settings, and runs one command, decoupled from any specific
// entrypoint like a CLI.
package app
