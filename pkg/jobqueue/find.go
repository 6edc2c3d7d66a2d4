package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// FindParams selects which jobs Find lists.
type FindParams struct {
	Queue string
	Type  JobState
	// Query holds caller filter parameters such as $limit and $skip.
	Query map[string]string
	// Paginate overrides the service pagination for this call when set.
	Paginate *Paginate
}

// Page is one slice of a job listing. Limit echoes the filter limit and is
// nil when the caller gave none; len(Data) is the authoritative page size.
type Page struct {
	Total int
	Limit *int
	Skip  int
	Data  []*Job

	paginated bool
}

// Paginated reports whether the page should be presented as an envelope.
func (p *Page) Paginated() bool {
	return p.paginated
}

// MarshalJSON encodes the envelope when paginated and the bare job list otherwise.
func (p *Page) MarshalJSON() ([]byte, error) {
	data := p.Data
	if data == nil {
		data = []*Job{}
	}
	if !p.paginated {
		return json.Marshal(data)
	}
	return json.Marshal(struct {
		Total int    `json:"total"`
		Limit *int   `json:"limit,omitempty"`
		Skip  int    `json:"skip"`
		Data  []*Job `json:"data"`
	}{p.Total, p.Limit, p.Skip, data})
}

// Find lists jobs of params.Type in params.Queue.
//
// The total comes from a health snapshot taken before the range fetch, so
// len(Data) may disagree with Total under concurrent state changes.
// A $limit of 0 returns only the count. Without a limit every job from
// skip to the end of the snapshot is fetched.
func (s *Service) Find(ctx context.Context, params FindParams) (*Page, error) {
	paginate := s.paginate
	if params.Paginate != nil {
		paginate = *params.Paginate
	}

	page, err := s.find(ctx, params, paginate)
	if err != nil {
		return nil, err
	}
	page.paginated = paginate.Enabled()
	return page, nil
}

func (s *Service) find(ctx context.Context, params FindParams, paginate Paginate) (*Page, error) {
	filter, err := ParseFilter(params.Query, paginate)
	if err != nil {
		return nil, err
	}

	if params.Type == "" {
		return nil, ErrTypeRequired
	}
	if !params.Type.Valid() {
		return nil, fmt.Errorf("%w (got %q)", ErrInvalidType, params.Type)
	}

	backend, err := s.registry.Resolve(params.Queue)
	if err != nil {
		return nil, err
	}

	counts, err := backend.CheckHealth(ctx)
	if err != nil {
		return nil, err
	}
	total := counts[params.Type]

	skip := 0
	if filter.Skip != nil {
		skip = *filter.Skip
	}

	if filter.Limit != nil && *filter.Limit == 0 {
		return &Page{Total: total, Limit: filter.Limit, Skip: skip, Data: []*Job{}}, nil
	}

	limit := total - skip
	if filter.Limit != nil {
		limit = *filter.Limit
	}
	limit = min(limit, math.MaxInt-skip)

	data, err := backend.GetJobs(ctx, params.Type, Range{Start: skip, End: skip + limit})
	if err != nil {
		return nil, err
	}

	return &Page{Total: total, Limit: filter.Limit, Skip: skip, Data: data}, nil
}
