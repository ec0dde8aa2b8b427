// Package artifactstore publishes archived build artifacts to a target
// repository. Backends: a local directory tree, an HTTP repository that
// accepts PUT uploads, and an SFTP server.
package artifactstore
