// Package scm checks out job sources and reads branch revisions for poll
// triggers. The only backend shells out to the git binary.
package scm
