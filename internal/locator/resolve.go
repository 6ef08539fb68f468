package locator

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Resolve produces the most resilient locator that uniquely identifies n in
// its current document. Priority: id, structural xpath, css nth-child path,
// and finally the structural xpath unverified.
func Resolve(n *html.Node) (Locator, error) {
	if n == nil || n.Type != html.ElementNode {
		return Locator{}, ErrDetached
	}

	if id := attr(n, "id"); id != "" {
		return ForCSS("#" + escapeIdent(id)), nil
	}

	root := rootOf(n)

	xp := StructuralPath(n)
	if matchesOnly(root, ForXPath(xp), n) {
		return ForXPath(xp), nil
	}

	if css := cssPath(n); css != "" && matchesOnly(root, ForCSS(css), n) {
		return ForCSS(css), nil
	}

	return ForXPath(xp), nil
}

// StructuralPath returns the ancestor chain of n as an absolute xpath, each step
// carrying the 1-based position among same-tag element siblings.
func StructuralPath(n *html.Node) string {
	var steps []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		steps = append(steps, cur.Data+"["+strconv.Itoa(sameTagIndex(cur))+"]")
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return "/" + strings.Join(steps, "/")
}

// cssPath walks to the root emitting tag:nth-child(k) where siblings exist,
// stopping at the first ancestor with an id.
func cssPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := attr(cur, "id"); id != "" {
			parts = append(parts, "#"+escapeIdent(id))
			break
		}
		part := cur.Data
		if count, index := elementSiblings(cur); count > 1 {
			part += ":nth-child(" + strconv.Itoa(index) + ")"
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func matchesOnly(root *html.Node, l Locator, n *html.Node) bool {
	nodes, err := Find(root, l)
	return err == nil && len(nodes) == 1 && nodes[0] == n
}

func sameTagIndex(n *html.Node) int {
	index := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			index++
		}
	}
	return index
}

// elementSiblings counts element children of n's parent (n included) and n's 1-based position
func elementSiblings(n *html.Node) (count, index int) {
	if n.Parent == nil {
		return 1, 1
	}
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		count++
		if sib == n {
			index = count
		}
	}
	return count, index
}

func rootOf(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// escapeIdent escapes characters that would break a CSS id selector
func escapeIdent(s string) string {
	if s == "-" {
		return `\-`
	}
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20 || r == 0x7f,
			r >= '0' && r <= '9' && (i == 0 || i == 1 && s[0] == '-'):
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case r == '-' || r == '_' || r >= 0x80,
			r >= '0' && r <= '9',
			r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
