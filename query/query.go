// Package query implements the stateless query engine applied to a live
// mirror's current snapshot: filter, sort, paginate, exact-id lookup and
// reference matching. Every operation works on the records it is handed
// and never reaches back to the remote store.
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/record"
)

// SortOrder direction constants as the UI layer sends them.
const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

// Pagination selects a 1-based page of a given size. A zero value means
// no pagination: the full result is returned.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

// Sort names a record field and a direction (OrderAsc or OrderDesc).
// An empty Field means no sorting.
type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// Filter maps field names to case-insensitive substring patterns,
// OR-combined across fields. An empty filter matches everything.
type Filter map[string]string

// ListParams carries the parameters of a list query.
type ListParams struct {
	Pagination Pagination
	Sort       Sort
	Filter     Filter
}

// ListResult is a page of records plus a total. For List the total is the
// size of the unfiltered snapshot; for GetManyReference it is the number
// of matching records.
type ListResult struct {
	Data  []record.Record
	Total int
}

// List filters, sorts and paginates the snapshot.
//
// Total deliberately reports the unfiltered snapshot size, not the
// filtered count. That is the mandated provider contract: the UI uses it
// to show overall resource size while paging the filtered view.
func List(records []record.Record, params ListParams) ListResult {
	matched := applyFilter(records, params.Filter)
	sortRecords(matched, params.Sort)
	return ListResult{
		Data:  paginate(matched, params.Pagination),
		Total: len(records),
	}
}

// GetOne scans the snapshot for an id match. When duplicates exist, which
// the id-uniqueness invariant rules out, the last match wins.
func GetOne(records []record.Record, id string) (record.Record, error) {
	var found record.Record
	for _, rec := range records {
		if rec.ID() == id {
			found = rec
		}
	}
	if found == nil {
		return nil, errors.NewNotFound(id)
	}
	return found, nil
}

// GetMany returns every record whose id is in the requested set, in
// snapshot order. The result count carries no guarantee of matching the
// request count.
func GetMany(records []record.Record, ids []string) []record.Record {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	out := make([]record.Record, 0, len(ids))
	for _, rec := range records {
		if _, ok := wanted[rec.ID()]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// ReferenceParams carries the parameters of a reference query: records
// whose Target field equals ID, paginated.
type ReferenceParams struct {
	Target     string
	ID         any
	Pagination Pagination
	Sort       Sort
}

// GetManyReference returns the page of records referencing the target.
//
// The sort is applied to the full snapshot before the reference match is
// taken, so the matched subset inherits its relative order from the fully
// sorted collection. Sorting only the matched subset would be cleaner but
// behaviorally different; the full-collection ordering is preserved as
// the documented contract.
func GetManyReference(records []record.Record, params ReferenceParams) ListResult {
	sorted := make([]record.Record, len(records))
	copy(sorted, records)
	sortRecords(sorted, params.Sort)

	matched := make([]record.Record, 0)
	for _, rec := range sorted {
		if reflect.DeepEqual(rec[params.Target], params.ID) {
			matched = append(matched, rec)
		}
	}

	return ListResult{
		Data:  paginate(matched, params.Pagination),
		Total: len(matched),
	}
}

// applyFilter returns the records matching the filter. A record matches
// when any requested field's string value contains (case-insensitive) the
// pattern for that field. Absent or non-string values never match, and a
// record missing every requested field is excluded.
func applyFilter(records []record.Record, filter Filter) []record.Record {
	if len(filter) == 0 {
		// Copy so a later in-place sort never touches the caller's snapshot.
		out := make([]record.Record, len(records))
		copy(out, records)
		return out
	}

	matched := make([]record.Record, 0, len(records))
	for _, rec := range records {
		if filterMatches(rec, filter) {
			matched = append(matched, rec)
		}
	}
	return matched
}

func filterMatches(rec record.Record, filter Filter) bool {
	for field, pattern := range filter {
		value, ok := rec[field].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(value), strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// sortRecords stable-sorts in place on the case-insensitive string form of
// the sort field. Missing or falsy values compare as empty string. The
// direction flips the comparison result only; equal keys keep their
// original relative order in both directions.
func sortRecords(records []record.Record, s Sort) {
	if s.Field == "" {
		return
	}

	desc := strings.EqualFold(s.Order, OrderDesc)
	sort.SliceStable(records, func(i, j int) bool {
		a := sortKey(records[i][s.Field])
		b := sortKey(records[j][s.Field])
		if a == b {
			return false
		}
		if desc {
			return a > b
		}
		return a < b
	})
}

// sortKey coerces a field value to its comparable string form. Falsy
// values (nil, empty string, false, numeric zero) become empty string.
func sortKey(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(tv)
	case bool:
		if !tv {
			return ""
		}
		return "true"
	case int:
		if tv == 0 {
			return ""
		}
		return fmt.Sprintf("%d", tv)
	case int64:
		if tv == 0 {
			return ""
		}
		return fmt.Sprintf("%d", tv)
	case float64:
		if tv == 0 {
			return ""
		}
		return strings.ToLower(fmt.Sprintf("%v", tv))
	default:
		return strings.ToLower(fmt.Sprintf("%v", tv))
	}
}

// paginate slices [(page-1)*perPage, page*perPage), clamped to bounds.
func paginate(records []record.Record, p Pagination) []record.Record {
	if p.Page <= 0 || p.PerPage <= 0 {
		return records
	}

	start := (p.Page - 1) * p.PerPage
	if start >= len(records) {
		return []record.Record{}
	}
	end := start + p.PerPage
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}
