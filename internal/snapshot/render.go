// CLAUDE:SUMMARY Accessibility-tree walker: document-order DFS, presentational-node collapse, state flags, and sequential ref assignment.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// interactiveRoles are the roles that receive refs. Everything else is
// rendered for context but cannot be acted on.
var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"textbox":          true,
	"searchbox":        true,
	"combobox":         true,
	"listbox":          true,
	"option":           true,
	"checkbox":         true,
	"radio":            true,
	"switch":           true,
	"slider":           true,
	"spinbutton":       true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"tab":              true,
	"treeitem":         true,
}

// textEntryRoles get their placeholder attribute fetched from the DOM,
// since the accessibility tree does not carry it as a property.
var textEntryRoles = map[string]bool{
	"textbox":   true,
	"searchbox": true,
	"combobox":  true,
}

type walker struct {
	ctx      context.Context
	src      Source
	byID     map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode
	seen     map[proto.AccessibilityAXNodeID]bool
	maxNodes int

	lines      []string
	refs       map[string]RefTarget
	refCounter int
	truncated  bool
}

// walk renders the flat node list into an indented outline, assigning
// refs e1, e2, … in document order. The traversal follows childIds from
// the root, not the array order of the flat list.
func walk(ctx context.Context, src Source, nodes []*proto.AccessibilityAXNode, maxNodes int) *walker {
	w := &walker{
		ctx:      ctx,
		src:      src,
		byID:     make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes)),
		seen:     make(map[proto.AccessibilityAXNodeID]bool, len(nodes)),
		maxNodes: maxNodes,
		refs:     make(map[string]RefTarget),
	}

	isChild := make(map[proto.AccessibilityAXNodeID]bool)
	for _, n := range nodes {
		w.byID[n.NodeID] = n
		for _, c := range n.ChildIDs {
			isChild[c] = true
		}
	}

	var root *proto.AccessibilityAXNode
	for _, n := range nodes {
		if !isChild[n.NodeID] {
			root = n
			break
		}
	}
	if root == nil && len(nodes) > 0 {
		root = nodes[0]
	}

	w.visit(root, 0)
	return w
}

func (w *walker) text() string {
	return strings.Join(w.lines, "\n")
}

func (w *walker) visit(node *proto.AccessibilityAXNode, depth int) {
	if node == nil || w.truncated || w.seen[node.NodeID] {
		return
	}
	w.seen[node.NodeID] = true

	role := axString(node.Role)
	name := axString(node.Name)

	// Presentational wrappers disappear; their children surface at the
	// parent's depth so the outline stays flat where the DOM is noisy.
	if presentational(node, role, name) {
		for _, id := range node.ChildIDs {
			w.visit(w.byID[id], depth)
		}
		return
	}

	var ref string
	if interactiveRoles[role] && node.BackendDOMNodeID != 0 {
		w.refCounter++
		ref = fmt.Sprintf("e%d", w.refCounter)
		w.refs[ref] = RefTarget{
			Ref:       ref,
			Role:      role,
			Name:      name,
			BackendID: node.BackendDOMNodeID,
		}
	}

	w.lines = append(w.lines, renderLine(depth, role, name, w.flags(node, role, ref), ref))
	if len(w.lines) >= w.maxNodes {
		w.truncated = true
		return
	}

	for _, id := range node.ChildIDs {
		w.visit(w.byID[id], depth+1)
	}
}

// presentational reports whether a node is rendered at all. Ignored and
// hidden nodes, layout-only roles, and nameless text fragments carry no
// information a caller can use.
func presentational(node *proto.AccessibilityAXNode, role, name string) bool {
	if node.Ignored || truthyProp(node, "hidden") {
		return true
	}
	switch role {
	case "", "none", "generic", "InlineTextBox":
		return true
	case "StaticText":
		return name == ""
	}
	return false
}

// flags collects the serialized state of a node, in a fixed order so
// captures of the same page are textually stable.
func (w *walker) flags(node *proto.AccessibilityAXNode, role, ref string) []string {
	var flags []string

	if v, ok := propValue(node, "checked"); ok {
		switch t := v.(type) {
		case bool:
			if t {
				flags = append(flags, "checked")
			}
		case string:
			switch t {
			case "true":
				flags = append(flags, "checked")
			case "mixed":
				flags = append(flags, "checked=mixed")
			}
		}
	}
	if truthyProp(node, "disabled") {
		flags = append(flags, "disabled")
	}
	if truthyProp(node, "expanded") {
		flags = append(flags, "expanded")
	}
	if v, ok := propValue(node, "level"); ok {
		if f, ok := v.(float64); ok && f > 0 {
			flags = append(flags, fmt.Sprintf("level=%d", int(f)))
		}
	}
	if v, ok := propValue(node, "url"); ok {
		if s, ok := v.(string); ok && s != "" {
			flags = append(flags, "url="+s)
		}
	}

	// Placeholder lives in the DOM, not the AX tree. Fetch it only for
	// refable text inputs to keep the per-capture CDP call count bounded.
	if ref != "" && textEntryRoles[role] {
		if attrs, err := w.src.NodeAttributes(w.ctx, node.BackendDOMNodeID); err == nil {
			if ph := attrs["placeholder"]; ph != "" {
				flags = append(flags, "placeholder="+ph)
			}
		}
	}

	return flags
}

func renderLine(depth int, role, name string, flags []string, ref string) string {
	var sb strings.Builder
	for i := 0; i < depth; i++ {
		sb.WriteString("  ")
	}
	sb.WriteString("- ")
	sb.WriteString(role)
	if name != "" {
		fmt.Fprintf(&sb, " %q", name)
	}
	for _, f := range flags {
		sb.WriteString(" [")
		sb.WriteString(f)
		sb.WriteString("]")
	}
	if ref != "" {
		sb.WriteString(" [ref=")
		sb.WriteString(ref)
		sb.WriteString("]")
	}
	return sb.String()
}

// axString extracts the string form of an AX value, tolerating absent
// values and non-string payloads.
func axString(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	if s, ok := v.Value.Val().(string); ok {
		return s
	}
	return ""
}

// propValue finds a named property on a node and returns its decoded
// value.
func propValue(node *proto.AccessibilityAXNode, name string) (any, bool) {
	for _, p := range node.Properties {
		if p == nil || p.Value == nil {
			continue
		}
		if string(p.Name) == name {
			return p.Value.Value.Val(), true
		}
	}
	return nil, false
}

// truthyProp reports whether a property is present and true. CDP encodes
// some booleans as the strings "true"/"false".
func truthyProp(node *proto.AccessibilityAXNode, name string) bool {
	v, ok := propValue(node, name)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}
