package extract

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/model"
)

// rawArray splits a JSON array into its elements.  Anything that isn't
// an array is ErrInvalidResponse.
func rawArray(raw string) ([]json.RawMessage, error) {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) == 0 || b[0] != '[' {
		return nil, ErrInvalidResponse
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, ErrInvalidResponse
	}
	return items, nil
}

var matchKeys = []string{"playerNames", "kills", "placement"}

// decodeMatches reads the team list.  Items missing a key are dropped;
// a key with the wrong type decodes as nil.
func decodeMatches(raw string) ([]model.MatchResult, error) {
	items, err := rawArray(raw)
	if err != nil {
		return nil, err
	}
	out := []model.MatchResult{}
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		complete := true
		for _, k := range matchKeys {
			if _, ok := fields[k]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		out = append(out, model.MatchResult{
			PlayerNames: decodeNames(fields["playerNames"]),
			Kills:       decodeInt(fields["kills"]),
			Placement:   decodeInt(fields["placement"]),
		})
	}
	return out, nil
}

func decodeNames(raw json.RawMessage) []string {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil
	}
	return names
}

// decodeInt accepts only integral JSON numbers.
func decodeInt(raw json.RawMessage) *int {
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil
	}
	if *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	i := int(*f)
	return &i
}

// decodeStrings keeps the non-blank strings of an array.  Other
// elements are ignored.
func decodeStrings(raw string) ([]string, error) {
	items, err := rawArray(raw)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if len(bytes.TrimSpace([]byte(s))) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeNumbers keeps the numeric elements of an array.  Valid JSON that
// isn't an array is an empty list, not an error.
func decodeNumbers(raw string) ([]decimal.Decimal, error) {
	var v any
	d := json.NewDecoder(bytes.NewReader([]byte(raw)))
	d.UseNumber()
	if err := d.Decode(&v); err != nil {
		return nil, ErrInvalidResponse
	}
	arr, ok := v.([]any)
	if !ok {
		return []decimal.Decimal{}, nil
	}
	out := []decimal.Decimal{}
	for _, e := range arr {
		n, ok := e.(json.Number)
		if !ok {
			continue
		}
		dec, err := decimal.NewFromString(n.String())
		if err != nil {
			continue
		}
		out = append(out, dec)
	}
	return out, nil
}
