package accounting

import "context"

// Source fetches accounting records for one company. Implementations return
// a typed fetch error on transport failure or a non-success status.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Record, error)
	Health(ctx context.Context) error
}
