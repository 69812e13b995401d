package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/feedq/internal/storage"
)

// Item is one feed entry ready for ingestion.
type Item struct {
	GUID    string
	Payload storage.Payload
}

type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
	}
}

// Parse returns the entries of an RSS or Atom document in document order.
// Entries without an identifier are returned with an empty GUID; the
// pipeline skips them.
func (p *Parser) Parse(data []byte) ([]Item, error) {
	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		guid := strings.TrimSpace(entry.GUID)
		items = append(items, Item{
			GUID: guid,
			Payload: storage.Payload{
				ID:        guid,
				Title:     entry.Title,
				Author:    getAuthor(entry),
				Published: entry.Published,
				Link:      entry.Link,
				Content:   strings.TrimSpace(entry.Content),
			},
		})
	}
	return items, nil
}

// getAuthor prefers dc:creator over the generic author element.
func getAuthor(entry *gofeed.Item) string {
	if entry.DublinCoreExt != nil {
		for _, creator := range entry.DublinCoreExt.Creator {
			if creator != "" {
				return creator
			}
		}
	}
	if entry.Author != nil {
		return entry.Author.Name
	}
	return ""
}
