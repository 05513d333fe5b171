// Package xml wraps xmlquery with the small surface the map tools need:
// parsing side files and catalogs, XPath selection, building documents and
// writing them back indented.
//
// Security Notes:
//   - xmlquery parses through encoding/xml, which never fetches external
//     entities. Well-formedness checks additionally disable entity expansion.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document represents a parsed or built XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element.
type Node struct {
	node *xmlquery.Node
}

// Parse reads an XML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseBytes parses XML data.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// WellFormed reports the first syntax error in data, or nil.
func WellFormed(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	// XXE Protection (CWE-611)
	decoder.Entity = map[string]string{}
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// NewDocument starts a document with an XML declaration and one root
// element.
func NewDocument(rootName string) (*Document, *Node) {
	doc := &xmlquery.Node{Type: xmlquery.DocumentNode}
	decl := &xmlquery.Node{Type: xmlquery.DeclarationNode, Data: "xml"}
	xmlquery.AddAttr(decl, "version", "1.0")
	xmlquery.AddChild(doc, decl)
	root := &xmlquery.Node{Type: xmlquery.ElementNode, Data: rootName}
	xmlquery.AddChild(doc, root)
	return &Document{root: doc}, &Node{node: root}
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes := xmlquery.QuerySelectorAll(d.root, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst executes an XPath query and returns the first matching node,
// or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	node := xmlquery.QuerySelector(d.root, compiled)
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// WriteTo writes the document indented with two spaces.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if d.root != nil {
		formatNode(&buf, d.root, 0, "  ")
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Bytes returns the indented document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	d.WriteTo(&buf)
	return buf.Bytes()
}

func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			formatNode(w, child, depth, indent)
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		writeAttrs(w, n)
		w.WriteString("?>\n")

	case xmlquery.ElementNode:
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteString("<")
		w.WriteString(n.Data)
		writeAttrs(w, n)

		var elements bool
		var text strings.Builder
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.ElementNode:
				elements = true
			case xmlquery.TextNode, xmlquery.CharDataNode:
				text.WriteString(child.Data)
			}
		}
		body := strings.TrimSpace(text.String())
		switch {
		case elements:
			w.WriteString(">\n")
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == xmlquery.ElementNode {
					formatNode(w, child, depth+1, indent)
				}
			}
			w.WriteString(strings.Repeat(indent, depth))
			w.WriteString("</" + n.Data + ">\n")
		case body != "":
			w.WriteString(">")
			xml.EscapeText(w, []byte(body))
			w.WriteString("</" + n.Data + ">\n")
		default:
			w.WriteString("/>\n")
		}
	}
}

func writeAttrs(w *bytes.Buffer, n *xmlquery.Node) {
	for _, attr := range n.Attr {
		w.WriteString(" ")
		w.WriteString(attr.Name.Local)
		w.WriteString(`="`)
		xml.EscapeText(w, []byte(attr.Value))
		w.WriteString(`"`)
	}
}

// Name returns the element name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Attributes returns all attributes of the node.
func (n *Node) Attributes() map[string]string {
	if n == nil || n.node == nil {
		return nil
	}
	attrs := make(map[string]string)
	for _, attr := range n.node.Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Attr returns the value of a specific attribute.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// HasAttr reports whether the attribute is present, even if empty.
func (n *Node) HasAttr(name string) bool {
	if n == nil || n.node == nil {
		return false
	}
	return n.node.HasAttr(name)
}

// Uint parses an unsigned attribute no wider than bits.
func (n *Node) Uint(name string, bits int) (uint64, error) {
	v := strings.TrimSpace(n.Attr(name))
	if v == "" {
		return 0, fmt.Errorf("<%s> missing attribute %q", n.Name(), name)
	}
	u, err := strconv.ParseUint(v, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("<%s %s=%q>: %w", n.Name(), name, v, err)
	}
	return u, nil
}

// AddElement appends a child element and returns it.
func (n *Node) AddElement(name string) *Node {
	child := &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
	xmlquery.AddChild(n.node, child)
	return &Node{node: child}
}

// SetAttr appends an attribute and returns the node for chaining.
func (n *Node) SetAttr(name, value string) *Node {
	xmlquery.AddAttr(n.node, name, value)
	return n
}

// SetText replaces the text content of the node.
func (n *Node) SetText(text string) *Node {
	for child := n.node.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == xmlquery.TextNode || child.Type == xmlquery.CharDataNode {
			xmlquery.RemoveFromTree(child)
		}
		child = next
	}
	xmlquery.AddChild(n.node, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	return n
}
