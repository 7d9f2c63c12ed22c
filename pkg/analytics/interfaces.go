package analytics

import (
	funnel "github.com/goliatone/go-funnels/components/funnel"
)

// Client is a convenience union for backends that run funnels and hydrate people.
type Client interface {
	funnel.QueryClient
	funnel.PeopleClient
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
)
