package scene

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Node is a live element of a scene tree. Roots act as the parent
// containers that instantiate-style loaders attach their results to.
type Node struct {
	mu         sync.RWMutex
	name       string
	prefab     *Prefab
	components map[string]*Component
	parent     *Node
	children   []*Node
}

// NewRoot creates an empty, parentless container node.
func NewRoot(name string) *Node {
	return &Node{name: name, components: map[string]*Component{}}
}

// Instantiate builds a node tree from the prefab and attaches it under
// parent. Components are copied, so mutating the instance never touches
// the prefab. A nil parent yields a detached instance.
func Instantiate(p *Prefab, parent *Node) *Node {
	n := build(p)
	if parent != nil {
		parent.attach(n)
	}
	return n
}

func build(p *Prefab) *Node {
	n := &Node{
		name:       p.Name,
		prefab:     p,
		components: make(map[string]*Component, len(p.Components)),
	}
	for _, c := range p.Components {
		n.components[c.Type] = c.clone()
	}
	for _, cp := range p.Children {
		child := build(cp)
		child.parent = n
		n.children = append(n.children, child)
	}
	return n
}

func (n *Node) attach(child *Node) {
	n.mu.Lock()
	n.children = append(n.children, child)
	n.mu.Unlock()

	child.mu.Lock()
	child.parent = n
	child.mu.Unlock()
}

// Detach removes the node from its parent. Detaching a root is a no-op.
func (n *Node) Detach() {
	n.mu.Lock()
	parent := n.parent
	n.parent = nil
	n.mu.Unlock()

	if parent == nil {
		return
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for i, c := range parent.children {
		if c == n {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			return
		}
	}
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// Prefab returns the definition the node was instantiated from, or nil for roots.
func (n *Node) Prefab() *Prefab { return n.prefab }

// Parent returns the node's parent, or nil.
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// Children returns a snapshot of the direct children.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Component returns the instance component of the given type, or nil.
func (n *Node) Component(typ string) *Component {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.components[typ]
}

// SetComponent adds or replaces a component on this instance.
func (n *Node) SetComponent(c *Component) {
	n.mu.Lock()
	n.components[c.Type] = c
	n.mu.Unlock()
}

// Find resolves a slash separated path of child names relative to n.
func (n *Node) Find(path string) *Node {
	cur := n
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		var next *Node
		for _, c := range cur.Children() {
			if c.Name() == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Walk visits n and all descendants depth-first.
func (n *Node) Walk(fn func(depth int, node *Node)) {
	n.walk(0, fn)
}

func (n *Node) walk(depth int, fn func(int, *Node)) {
	fn(depth, n)
	for _, c := range n.Children() {
		c.walk(depth+1, fn)
	}
}

// Fprint writes an indented outline of the tree.
func (n *Node) Fprint(w io.Writer) error {
	var err error
	n.Walk(func(depth int, node *Node) {
		if err != nil {
			return
		}
		node.mu.RLock()
		types := make([]string, 0, len(node.components))
		for t := range node.components {
			types = append(types, t)
		}
		node.mu.RUnlock()
		sort.Strings(types)

		line := strings.Repeat("  ", depth) + node.Name()
		if len(types) > 0 {
			line += " [" + strings.Join(types, ", ") + "]"
		}
		_, err = fmt.Fprintln(w, line)
	})
	return err
}
