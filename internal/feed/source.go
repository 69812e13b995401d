package feed

import (
	"context"
	"fmt"

	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/validation"
)

// Source yields the current entries of a feed in its native order.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
}

// HTTPSource polls one feed URL.
type HTTPSource struct {
	url     string
	fetcher *Fetcher
	parser  *Parser
}

// NewHTTPSource validates the configured feed URL and builds a source.
func NewHTTPSource(cfg *config.Config) (*HTTPSource, error) {
	validator := validation.NewFeedURLValidator()
	if cfg.Feed.AllowPrivate {
		validator = validation.NewPermissiveFeedURLValidator()
	}

	url, err := validator.ValidateAndNormalize(cfg.Feed.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	return &HTTPSource{
		url:     url,
		fetcher: NewFetcher(cfg),
		parser:  NewParser(),
	}, nil
}

func (s *HTTPSource) URL() string { return s.url }

func (s *HTTPSource) Items(ctx context.Context) ([]Item, error) {
	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	items, err := s.parser.Parse(body)
	if err != nil {
		// The validators now describe a body we could not use; drop them so
		// the next poll does not get a 304 for it.
		s.fetcher.Reset()
		return nil, err
	}
	return items, nil
}
