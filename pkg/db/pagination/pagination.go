package pagination

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

// Page is zero-based offset pagination as exposed by list endpoints.
type Page struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

// Normalize clamps the page to usable values, falling back to defaultSize when
// no size was requested.
func (p Page) Normalize(defaultSize int) Page {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return p.Page * p.Size
}

func (p Page) Limit() int {
	return p.Size
}
