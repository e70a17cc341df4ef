package profile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	InitialPageSize = 6
	PageIncrement   = 3
)

// Departments are the department filter options offered to clients.
var Departments = []string{
	"Computer Science",
	"Mathematics",
	"Physics",
	"Electronics",
	"Economics",
	"IT Services",
}

// Query selects profiles. Empty fields do not filter.
type Query struct {
	Search     string `form:"search" json:"search"`
	Department string `form:"department" json:"department"`
	Role       Role   `form:"role" json:"role"`
	Alpha      string `form:"alpha" json:"alpha"`
}

// Validate rejects an alpha filter longer than one letter.
func (q Query) Validate() error {
	if utf8.RuneCountInString(q.Alpha) > 1 {
		return fmt.Errorf("%w: alpha must be a single letter", ErrValidation)
	}
	return nil
}

// Match reports whether p satisfies every active predicate of q. A blank
// search is inactive; otherwise the term is matched as typed, surrounding
// spaces included.
func (q Query) Match(p Profile) bool {
	if strings.TrimSpace(q.Search) != "" && !matchesTerm(p, strings.ToLower(q.Search)) {
		return false
	}
	if q.Department != "" && p.Department != q.Department {
		return false
	}
	if q.Role != "" && p.Role != q.Role {
		return false
	}
	if q.Alpha != "" && !sameInitial(p.Name, q.Alpha) {
		return false
	}
	return true
}

// sameInitial compares the first letters of a and b ignoring case.
func sameInitial(a, b string) bool {
	ra, _ := utf8.DecodeRuneInString(a)
	rb, _ := utf8.DecodeRuneInString(b)
	return ra != utf8.RuneError && unicode.ToUpper(ra) == unicode.ToUpper(rb)
}

func matchesTerm(p Profile, term string) bool {
	if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Email), term) {
		return true
	}
	for _, s := range p.Skills {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// Filter returns the profiles matching q in their original order.
func Filter(profiles []Profile, q Query) []Profile {
	res := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		if q.Match(p) {
			res = append(res, p)
		}
	}
	return res
}

// Pager tracks how many filtered results are visible: an initial page and a
// fixed increment per "load more".
type Pager struct {
	count int
}

func NewPager() Pager { return Pager{count: InitialPageSize} }

// Shown is the number of visible items out of total.
func (p Pager) Shown(total int) int {
	return min(p.count, total)
}

// HasMore reports whether some of total are still hidden.
func (p Pager) HasMore(total int) bool { return p.count < total }

// LoadMore grows the page by PageIncrement. It does nothing once every item
// is visible.
func (p *Pager) LoadMore(total int) bool {
	if !p.HasMore(total) {
		return false
	}
	p.count += PageIncrement
	return true
}

func (p *Pager) Reset() { p.count = InitialPageSize }

// Page is one rendered view of a filtered collection.
type Page struct {
	Profiles []Profile `json:"profiles"`
	Total    int       `json:"total"`
	Shown    int       `json:"shown"`
	HasMore  bool      `json:"hasMore"`
}

// Browser couples a collection with the current query and page. Changing the
// query or the collection sends the pager back to the first page.
type Browser struct {
	all      []Profile
	query    Query
	filtered []Profile
	pager    Pager
}

func NewBrowser(all []Profile) *Browser {
	b := &Browser{pager: NewPager()}
	b.SetProfiles(all)
	return b
}

func (b *Browser) SetProfiles(all []Profile) {
	b.all = all
	b.refresh()
}

func (b *Browser) SetQuery(q Query) {
	b.query = q
	b.refresh()
}

func (b *Browser) Query() Query { return b.query }

func (b *Browser) LoadMore() bool { return b.pager.LoadMore(len(b.filtered)) }

func (b *Browser) Page() Page {
	total := len(b.filtered)
	shown := b.pager.Shown(total)
	return Page{
		Profiles: b.filtered[:shown:shown],
		Total:    total,
		Shown:    shown,
		HasMore:  b.pager.HasMore(total),
	}
}

func (b *Browser) refresh() {
	b.filtered = Filter(b.all, b.query)
	b.pager.Reset()
}

// Facets are the filter options. They are fixed and do not narrow with the
// current selection.
type Facets struct {
	Departments []string `json:"departments"`
	Roles       []Role   `json:"roles"`
	Alphabet    []string `json:"alphabet"`
}

func DefaultFacets() Facets {
	alphabet := make([]string, 0, 26)
	for c := 'A'; c <= 'Z'; c++ {
		alphabet = append(alphabet, string(c))
	}
	return Facets{
		Departments: append([]string(nil), Departments...),
		Roles:       append([]Role(nil), Roles...),
		Alphabet:    alphabet,
	}
}
