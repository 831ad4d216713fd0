package build

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const defaultDocument = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>bundlr</title>
</head>
<body>
<div id="app"></div>
</body>
</html>
`

// documentInput is what the root document links to.
type documentInput struct {
	PublicPath string
	Scripts    []string
	Styles     []string
	// Inline scripts are appended to the body after the deferred scripts.
	Inline []string
}

// renderDocument injects stylesheet links into the head and deferred
// scripts at the end of the body of tmpl. An empty tmpl uses a minimal
// document. BASE_URL placeholders are replaced with the public path.
func renderDocument(tmpl []byte, in documentInput) ([]byte, error) {
	if len(bytes.TrimSpace(tmpl)) == 0 {
		tmpl = []byte(defaultDocument)
	}
	src := strings.NewReplacer("<%= BASE_URL %>", in.PublicPath, "<%=BASE_URL%>", in.PublicPath).Replace(string(tmpl))

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	head := findElement(doc, atom.Head)
	body := findElement(doc, atom.Body)
	if head == nil || body == nil {
		return nil, fmt.Errorf("document template has no head or body")
	}

	for _, href := range in.Styles {
		head.AppendChild(&html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Link,
			Data:     "link",
			Attr: []html.Attribute{
				{Key: "href", Val: in.PublicPath + href},
				{Key: "rel", Val: "stylesheet"},
			},
		})
	}
	for _, src := range in.Scripts {
		body.AppendChild(&html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Script,
			Data:     "script",
			Attr: []html.Attribute{
				{Key: "defer"},
				{Key: "src", Val: in.PublicPath + src},
			},
		})
	}
	for _, code := range in.Inline {
		script := &html.Node{Type: html.ElementNode, DataAtom: atom.Script, Data: "script"}
		script.AppendChild(&html.Node{Type: html.TextNode, Data: code})
		body.AppendChild(script)
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return out.Bytes(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
