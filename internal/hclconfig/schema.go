package hclconfig

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a manifest file may contain.
type fileRoot struct {
	Sources []*hclSource `hcl:"source,block"`
	Scenes  []*hclScene  `hcl:"scene,block"`
	Remain  hcl.Body     `hcl:",remain"`
}

type hclSource struct {
	Type               string `hcl:"type,label"`
	Path               string `hcl:"path,optional"`
	URL                string `hcl:"url,optional"`
	Timeout            string `hcl:"timeout,optional"`
	Namespace          string `hcl:"namespace,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}

type hclScene struct {
	Name    string      `hcl:"name,label"`
	Timeout string      `hcl:"timeout,optional"`
	Assets  []*hclAsset `hcl:"asset,block"`
}

type hclAsset struct {
	Name        string `hcl:"name,label"`
	Kind        string `hcl:"kind"`
	Key         string `hcl:"key"`
	Part        string `hcl:"part,optional"`
	Instantiate bool   `hcl:"instantiate,optional"`
}
