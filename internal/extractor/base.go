package extractor

import "stubgen/internal/symbol"

// Result is what one strategy contributes from one source.
type Result struct {
	Entries []symbol.Entry
	// Seen is the caller's set extended with every name this call produced.
	Seen symbol.Set
	// Confirmed lists names the source declares that were skipped as already seen.
	Confirmed []symbol.Name
	// Problems are non-fatal anomalies such as unparsable signatures.
	Problems []error
}

// Strategy turns the text of one declarative source into expected entries.
// It never mutates the seen set passed in.
type Strategy interface {
	Name() string
	Extract(src []byte, origin string, seen symbol.Set) Result
}

// record appends e unless seen already holds the name and e adds no signature.
func (r *Result) record(e symbol.Entry) {
	if r.Seen.Has(e.Name) && !e.HasSignature() {
		r.Confirmed = append(r.Confirmed, e.Name)
		return
	}
	r.Seen.Add(e.Name)
	r.Entries = append(r.Entries, e)
}

func newResult(seen symbol.Set) Result {
	return Result{Seen: symbol.Set{}.Union(seen)}
}
