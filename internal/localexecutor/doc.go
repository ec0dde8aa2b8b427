// Package localexecutor runs job commands on the local machine with
// "sh -c", each job in its own workspace directory.
package localexecutor
