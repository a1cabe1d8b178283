package xml

import (
	"encoding/xml"
	"strings"
)

// Node is a generic XML element: its name with the namespace resolved to a
// URI where one was declared, attributes, direct text, and child elements.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

// Attr returns the value of the first attribute with the given local name.
func (n *Node) Attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local && a.Name.Space != "xmlns" {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child with the given local name that lives in the
// same namespace as n, or in no namespace.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local && (c.Name.Space == "" || c.Name.Space == n.Name.Space) {
			return c
		}
	}
	return nil
}

// ChildNS returns the first child in namespace space with the given local name.
func (n *Node) ChildNS(space, local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local && c.Name.Space == space {
			return c
		}
	}
	return nil
}

// ChildrenLocal returns every child whose local name matches, ignoring namespaces.
func (n *Node) ChildrenLocal(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// firstLocal is ChildrenLocal limited to one result.
func (n *Node) firstLocal(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// Find resolves a dot separated path of local names. The first segment names
// the node itself; all elements matching the final segment are returned.
func (n *Node) Find(path string) []*Node {
	segs := strings.Split(strings.Trim(path, "."), ".")
	if len(segs) == 0 || segs[0] != n.Name.Local {
		return nil
	}
	current := []*Node{n}
	for _, seg := range segs[1:] {
		var next []*Node
		for _, c := range current {
			next = append(next, c.ChildrenLocal(seg)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// Walk visits n and all its descendants depth first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
