package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/assetgrid/internal/asset"
)

// Asset outcomes shown in a report.
const (
	StatusLoaded  = "loaded"
	StatusFailed  = "failed"
	StatusLoading = "loading"
)

// AssetReport is the outcome of one bound asset.
type AssetReport struct {
	Name   string
	Ref    asset.Ref
	Status string
	Err    error
}

// SceneReport summarises one scene's preload pass.
type SceneReport struct {
	Scene   string
	Elapsed time.Duration
	Assets  []AssetReport
	// Tree is the scene graph rendered with scene.Node.Fprint.
	Tree string
	Err  error
}

func newSceneReport(s *Scope, elapsed time.Duration, err error) *SceneReport {
	rep := &SceneReport{Scene: s.Name(), Elapsed: elapsed, Err: err}
	for _, name := range s.Names() {
		l, _ := s.Loader(name)
		rep.Assets = append(rep.Assets, assetReport(name, l))
	}
	var tree strings.Builder
	_ = s.Root().Fprint(&tree)
	rep.Tree = tree.String()
	return rep
}

func assetReport(name string, l asset.Untyped) AssetReport {
	r := AssetReport{Name: name, Ref: l.Ref(), Status: StatusLoading}
	if d, ok := l.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-d.Done():
			r.Status = StatusLoaded
			return r
		default:
		}
	}
	if l.IsReady() || l.Err() != nil {
		r.Status = StatusFailed
		r.Err = l.Err()
	}
	return r
}

// Loaded returns how many assets signalled.
func (r *SceneReport) Loaded() int {
	n := 0
	for _, a := range r.Assets {
		if a.Status == StatusLoaded {
			n++
		}
	}
	return n
}

// Write renders the report as plain text.
func (r *SceneReport) Write(w io.Writer) {
	fmt.Fprintf(w, "Scene %q: %d/%d assets loaded in %s\n", r.Scene, r.Loaded(), len(r.Assets), r.Elapsed.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, a := range r.Assets {
		status := a.Status
		if a.Err != nil {
			status = fmt.Sprintf("%s: %v", a.Status, a.Err)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", a.Name, a.Ref, status)
	}
	tw.Flush()
	if r.Tree != "" {
		fmt.Fprint(w, r.Tree)
	}
	if r.Err != nil {
		fmt.Fprintf(w, "  error: %v\n", r.Err)
	}
}
