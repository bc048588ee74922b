// Package hclconfig implements config.Loader for HCL manifests.
//
// A manifest path may be a single .hcl file or a directory, which is
// searched recursively. All files are merged into one model:
//
//	source "dir" { path = "./assets" }
//
//	scene "main" {
//	  timeout = "5s"
//	  asset "hero" {
//	    kind        = "prefab"
//	    key         = "hero.hcl"
//	    instantiate = true
//	  }
//	}
package hclconfig
