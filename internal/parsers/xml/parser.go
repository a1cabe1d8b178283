package xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/kosarica/feed-service/internal/parsers/charset"
)

// Options tunes item location.
type Options struct {
	// ItemPath is a dot separated path (e.g. "products.product") tried before
	// the built-in channel/item, entry and root rules.
	ItemPath string
}

// Result holds the located items and the namespace bindings of a document.
// A document that failed to parse yields a Result with no items.
type Result struct {
	Root       *Node
	Items      []*Node
	Namespaces map[string]string
	Flavor     string
}

// Parser locates repeating item elements in arbitrary XML documents.
type Parser struct {
	options Options
}

// NewParser creates a parser with the given options.
func NewParser(options Options) *Parser {
	return &Parser{options: options}
}

// Parse builds the element tree and picks the item elements. It never fails:
// malformed or truncated input returns an empty Result.
func (p *Parser) Parse(data []byte) *Result {
	result := &Result{Namespaces: map[string]string{}}

	root, err := buildTree(charset.StripBOM(data))
	if err != nil {
		log.Debug().Err(err).Int("bytes", len(data)).Msg("XML parse failed")
		return result
	}

	result.Root = root
	result.Namespaces = collectNamespaces(root)
	result.Items = p.locateItems(root)
	result.Flavor = detectFlavor(data)
	return result
}

// Parse parses data with default options.
func Parse(data []byte) *Result {
	return NewParser(Options{}).Parse(data)
}

func (p *Parser) locateItems(root *Node) []*Node {
	if p.options.ItemPath != "" {
		if items := root.Find(p.options.ItemPath); len(items) > 0 {
			return items
		}
	}
	if channel := root.firstLocal("channel"); channel != nil {
		if items := channel.ChildrenLocal("item"); len(items) > 0 {
			return items
		}
	}
	if entries := root.ChildrenLocal("entry"); len(entries) > 0 {
		return entries
	}
	// RSS 1.0 keeps items beside the channel.
	if items := root.ChildrenLocal("item"); len(items) > 0 {
		return items
	}
	return []*Node{root}
}

func buildTree(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	valid := utf8.Valid(data)
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		// Content already converted upstream still carries its original declaration.
		if valid {
			return input, nil
		}
		return charset.NewReader(label, input)
	}

	var (
		root  *Node
		stack []*Node
		texts []*strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			} else {
				return nil, errors.New("multiple root elements")
			}
			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("unbalanced end element " + t.Name.Local)
			}
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(texts[len(texts)-1].String())
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}
	if len(stack) > 0 {
		return nil, errors.New("unexpected end of document inside " + stack[len(stack)-1].Name.Local)
	}
	return root, nil
}

// collectNamespaces gathers prefix bindings declared anywhere in the tree.
// The first declaration of a prefix wins.
func collectNamespaces(root *Node) map[string]string {
	ns := map[string]string{}
	root.Walk(func(n *Node) {
		for _, a := range n.Attrs {
			if a.Name.Space != "xmlns" || a.Name.Local == "" {
				continue
			}
			if _, ok := ns[a.Name.Local]; !ok {
				ns[a.Name.Local] = a.Value
			}
		}
	})
	return ns
}

func detectFlavor(data []byte) string {
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeRSS:
		return "rss"
	case gofeed.FeedTypeAtom:
		return "atom"
	}
	return ""
}
