package viewstate

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Query parameter names of the URL surface.
const (
	ParamPage          = "page"
	ParamPageSize      = "pageSize"
	ParamSortColumn    = "sortColumn"
	ParamSortDirection = "sortDirection"
	ParamSearch        = "search"
	ParamHidden        = "hidden"

	// ListSeparator joins the values of a multi-value parameter.
	ListSeparator = ","
)

var reservedParams = map[string]bool{
	ParamPage:          true,
	ParamPageSize:      true,
	ParamSortColumn:    true,
	ParamSortDirection: true,
	ParamSearch:        true,
	ParamHidden:        true,
}

// Codec maps ViewState to and from its query-string form.
type Codec struct {
	schema Schema
}

// NewCodec validates the schema and returns a codec for it.
func NewCodec(schema Schema) (*Codec, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Codec{schema: schema}, nil
}

// Schema returns the schema the codec was built with.
func (c *Codec) Schema() Schema {
	return c.schema
}

// Defaults returns the schema's default state.
func (c *Codec) Defaults() ViewState {
	return c.schema.Defaults()
}

// Encode serializes s, omitting every field equal to its default. Selection
// is never encoded. Output is deterministic: keys and list values are sorted.
func (c *Codec) Encode(s ViewState) string {
	defaults := c.schema.Defaults()
	var params []param

	if s.PageIndex != defaults.PageIndex {
		params = append(params, param{ParamPage, []string{strconv.Itoa(s.PageIndex)}})
	}
	if s.PageSize != defaults.PageSize {
		params = append(params, param{ParamPageSize, []string{strconv.Itoa(s.PageSize)}})
	}
	if s.Sort != nil {
		params = append(params,
			param{ParamSortColumn, []string{s.Sort.Column}},
			param{ParamSortDirection, []string{s.Sort.Direction()}},
		)
	}
	if s.Search != "" {
		params = append(params, param{ParamSearch, []string{s.Search}})
	}
	for _, d := range c.schema.Dimensions {
		if values := s.Filters[d.ID]; len(values) > 0 {
			params = append(params, param{d.ID, values.Sorted()})
		}
	}
	if !s.Hidden.Equal(defaults.Hidden) {
		params = append(params, param{ParamHidden, s.Hidden.Sorted()})
	}

	return encodeParams(params)
}

// Decode parses raw (with or without a leading '?') into a ViewState. It never
// fails: every missing or malformed parameter yields the default for its
// field.
func (c *Codec) Decode(raw string) ViewState {
	s := c.schema.Defaults()

	// ParseQuery keeps every pair it could parse even when it reports an
	// error for another one.
	q, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))

	if n, err := strconv.Atoi(q.Get(ParamPage)); err == nil && n >= 0 {
		s.PageIndex = n
	}
	if n, err := strconv.Atoi(q.Get(ParamPageSize)); err == nil && c.schema.AllowsPageSize(n) {
		s.PageSize = n
	}
	if col, ok := c.schema.Column(q.Get(ParamSortColumn)); ok && col.Sortable {
		s.Sort = &Sort{Column: col.ID, Desc: q.Get(ParamSortDirection) == DirectionDesc}
	}
	s.Search = q.Get(ParamSearch)

	for _, d := range c.schema.Dimensions {
		if values := splitList(q.Get(d.ID)); len(values) > 0 {
			s.Filters[d.ID] = NewSet(values...)
		}
	}

	if q.Has(ParamHidden) {
		hidden := make(Set)
		for _, id := range splitList(q.Get(ParamHidden)) {
			if _, ok := c.schema.Column(id); ok {
				hidden.Add(id)
			}
		}
		s.Hidden = hidden
	}

	return s
}

// Request builds the fetch request for s. Unlike Encode it always carries
// page and page size, so its key identifies the remote query completely.
func (c *Codec) Request(s ViewState) Request {
	req := Request{
		PageIndex: s.PageIndex,
		PageSize:  s.PageSize,
		Search:    s.Search,
		Filters:   make(map[string][]string, len(s.Filters)),
	}
	if s.Sort != nil {
		req.SortColumn = s.Sort.Column
		req.SortDirection = s.Sort.Direction()
	}
	for _, d := range c.schema.Dimensions {
		if values := s.Filters[d.ID]; len(values) > 0 {
			req.Filters[d.ID] = values.Sorted()
		}
	}
	return req
}

// Request is the remote query derived from a ViewState.
type Request struct {
	PageIndex     int
	PageSize      int
	SortColumn    string
	SortDirection string
	Search        string
	Filters       map[string][]string
}

// Key is the canonical serialization of the request. Equal requests have
// equal keys.
func (r Request) Key() string {
	params := []param{
		{ParamPage, []string{strconv.Itoa(r.PageIndex)}},
		{ParamPageSize, []string{strconv.Itoa(r.PageSize)}},
	}
	if r.SortColumn != "" {
		params = append(params,
			param{ParamSortColumn, []string{r.SortColumn}},
			param{ParamSortDirection, []string{r.SortDirection}},
		)
	}
	if r.Search != "" {
		params = append(params, param{ParamSearch, []string{r.Search}})
	}
	for dim, values := range r.Filters {
		if len(values) > 0 {
			params = append(params, param{dim, values})
		}
	}
	return encodeParams(params)
}

// Values returns the request as query parameters, the form the HTTP fetch
// contract expects. Sort parameters are omitted when unsorted.
func (r Request) Values() url.Values {
	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(r.PageIndex))
	v.Set(ParamPageSize, strconv.Itoa(r.PageSize))
	if r.SortColumn != "" {
		v.Set(ParamSortColumn, r.SortColumn)
		v.Set(ParamSortDirection, r.SortDirection)
	}
	if r.Search != "" {
		v.Set(ParamSearch, r.Search)
	}
	for dim, values := range r.Filters {
		if len(values) > 0 {
			v.Set(dim, strings.Join(values, ListSeparator))
		}
	}
	return v
}

// IsZero reports whether the request was never built.
func (r Request) IsZero() bool {
	return r.PageSize == 0
}

type param struct {
	key    string
	values []string
}

// encodeParams escapes every list segment on its own so the separator stays
// readable in the output ("dept=a,b" rather than "dept=a%2Cb").
func encodeParams(params []param) string {
	sort.Slice(params, func(i, j int) bool { return params[i].key < params[j].key })

	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.key))
		sb.WriteByte('=')
		for j, v := range p.values {
			if j > 0 {
				sb.WriteString(ListSeparator)
			}
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

func splitList(raw string) []string {
	var out []string
	for _, seg := range strings.Split(raw, ListSeparator) {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
