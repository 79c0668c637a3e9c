package filters

// Chain is the continuation of a filter: it holds the filters that were
// not executed yet. The zero value is an empty chain.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain from an ordered list of filters.
func NewChain(f []Filter) Chain {
	return Chain{filters: f}
}

// Len returns the number of filters remaining in the chain.
func (c Chain) Len() int {
	return len(c.filters)
}

// Next executes the first remaining filter, passing it the rest of the
// chain. When no filters remain, it returns nil.
func (c Chain) Next(ctx FilterContext) error {
	if len(c.filters) == 0 {
		return nil
	}

	return c.filters[0].Filter(ctx, Chain{filters: c.filters[1:]})
}
