// Package hcl_adapter loads job and pipeline definitions from HCL files into
// the format-agnostic config.Model.
//
// # File layout
//
//	job "build" {
//	  command = "mvn -B package"
//	  timeout = "30m"
//	  scm {
//	    url    = "https://git.example.com/app.git"
//	    branch = "main"
//	  }
//	  trigger "poll" { interval = "5m" }
//	  retention {
//	    builds = 10
//	  }
//	  publisher "archive_artifact" { pattern = "target/*.war" }
//	}
//
//	pipeline "release" {
//	  stage "build"  { job = "build" }
//	  stage "verify" { parallel = ["test", "metrics"] }
//	  promotion {
//	    job        = "promote"
//	    from       = "build"
//	    repository = "libs-release-local"
//	  }
//	}
//
// Expressions can read the variable `namespace` and call `upper`, `lower`,
// `join` and `format`.
package hcl_adapter
