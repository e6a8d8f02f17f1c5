package workspace

import "strings"

// RenderTree renders a tree as an indented listing, two spaces per level,
// with directories suffixed by "/".
//
//	src/
//	  main.go
//	README.md
func RenderTree(root *Node) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	for _, child := range root.Children {
		renderNode(&b, child, 0)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Name)
	if n.Kind == KindDirectory {
		b.WriteString("/")
	}
	b.WriteString("\n")
	for _, child := range n.Children {
		renderNode(b, child, depth+1)
	}
}
