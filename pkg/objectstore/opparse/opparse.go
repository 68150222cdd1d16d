// Package opparse is the StoreOperationParser recovered from
// original_source/x8/storage/object_store/_helper.py: every object-store
// operation accepts a free-form keyword bag (spec.md §6), and a provider
// must extract the normalized neutral fields from it while rejecting
// neutral keys whose values have the wrong type and passing everything
// else through as native params. FromMap is the typed equivalent of the original's
// StoreOperationParser.get_*() accessor family.
package opparse

import (
	"fmt"

	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/ql"
)

// neutralKeys is the full set of keys FromMap recognizes; anything else
// lands in NParams.
var neutralKeys = map[string]bool{
	"id": true, "version": true, "value": true, "file": true,
	"metadata": true, "properties": true, "where": true,
	"start": true, "end": true, "config": true, "collection": true,
	"returning": true, "source_id": true, "source_version": true,
	"source_collection": true, "method": true, "expiry_ms": true,
	"limit": true, "continuation": true, "params": true,
}

// Args is the normalized field set extracted from an operation's keyword
// bag, plus a MatchCondition compiled from "where" and the leftover
// provider-specific bag in NParams.
type Args struct {
	ID         string
	Version    string
	Value      []byte
	File       string
	Metadata   map[string]string
	Properties model.ObjectProperties
	Match      model.MatchCondition
	WhereExists *bool
	Start      *int64
	End        *int64
	Collection string
	Returning  string

	SourceID         string
	SourceVersion    string
	SourceCollection string

	Method   string
	ExpiryMS int64

	Limit        int
	Continuation string

	// NParams holds every key outside neutralKeys, verbatim. A query/count
	// "where" is not compiled into Args as a listing predicate; callers
	// that need one compile it with QueryPredicate.
	NParams map[string]any
}

// FromMap extracts Args from a free-form keyword bag, returning an error
// when a neutral key's value has the wrong type; no key is ever rejected
// by name, and everything not in neutralKeys passes through to NParams
// verbatim, matching the original's "neutral set is fixed, nparams is
// open" contract.
func FromMap(m map[string]any) (Args, error) {
	var a Args
	a.NParams = map[string]any{}

	for k, v := range m {
		if !neutralKeys[k] {
			a.NParams[k] = v
			continue
		}
		switch k {
		case "id":
			s, ok := v.(string)
			if !ok {
				return Args{}, fmt.Errorf("opparse: id must be a string")
			}
			a.ID = s
		case "version":
			s, _ := v.(string)
			a.Version = s
		case "value":
			switch b := v.(type) {
			case []byte:
				a.Value = b
			case string:
				a.Value = []byte(b)
			default:
				return Args{}, fmt.Errorf("opparse: value must be []byte or string")
			}
		case "file":
			s, _ := v.(string)
			a.File = s
		case "metadata":
			md, err := toStringMap(v)
			if err != nil {
				return Args{}, fmt.Errorf("opparse: metadata: %w", err)
			}
			a.Metadata = md
		case "properties":
			props, err := toProperties(v)
			if err != nil {
				return Args{}, fmt.Errorf("opparse: properties: %w", err)
			}
			a.Properties = props
		case "where":
			where, _ := v.(string)
			if where == "" {
				continue
			}
			expr, err := ql.Parse(where)
			if err != nil {
				return Args{}, fmt.Errorf("opparse: parse where: %w", err)
			}
			params, _ := m["params"].(map[string]any)
			match, err := ql.CompileMatchCondition(expr, ql.Params(params))
			if err != nil {
				return Args{}, fmt.Errorf("opparse: compile where: %w", err)
			}
			a.Match = match
			whereExists, err := ql.ParseWhereExists(where)
			if err != nil {
				return Args{}, fmt.Errorf("opparse: parse where exists: %w", err)
			}
			a.WhereExists = whereExists
		case "start":
			i, ok := toInt64(v)
			if !ok {
				return Args{}, fmt.Errorf("opparse: start must be an integer")
			}
			a.Start = &i
		case "end":
			i, ok := toInt64(v)
			if !ok {
				return Args{}, fmt.Errorf("opparse: end must be an integer")
			}
			a.End = &i
		case "collection":
			s, _ := v.(string)
			a.Collection = s
		case "returning":
			s, _ := v.(string)
			a.Returning = s
		case "source_id":
			s, _ := v.(string)
			a.SourceID = s
		case "source_version":
			s, _ := v.(string)
			a.SourceVersion = s
		case "source_collection":
			s, _ := v.(string)
			a.SourceCollection = s
		case "method":
			s, _ := v.(string)
			a.Method = s
		case "expiry_ms":
			i, ok := toInt64(v)
			if !ok {
				return Args{}, fmt.Errorf("opparse: expiry_ms must be an integer")
			}
			a.ExpiryMS = i
		case "limit":
			i, ok := toInt64(v)
			if !ok {
				return Args{}, fmt.Errorf("opparse: limit must be an integer")
			}
			a.Limit = int(i)
		case "continuation":
			s, _ := v.(string)
			a.Continuation = s
		case "params":
			// consumed above while compiling "where"; not itself neutral data.
		}
	}
	return a, nil
}

// QueryPredicate compiles Args.NParams["where"]-equivalent (passed
// separately by callers building a QueryArgs, since query/count where
// clauses compile to a ListingPredicate rather than a MatchCondition) —
// a standalone helper taking the same where string used to build Args.
// Nothing in pkg/objectstore calls it; only this package's tests do.
func QueryPredicate(where string, params map[string]any) (ql.ListingPredicate, error) {
	if where == "" {
		return ql.ListingPredicate{}, nil
	}
	expr, err := ql.Parse(where)
	if err != nil {
		return ql.ListingPredicate{}, fmt.Errorf("opparse: parse where: %w", err)
	}
	return ql.CompileListingPredicate(expr, ql.Params(params))
}

func toStringMap(v any) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("value for key %q must be a string", k)
			}
			out[k] = s
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("must be a string-keyed map")
	}
}

func toProperties(v any) (model.ObjectProperties, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if p, ok := v.(model.ObjectProperties); ok {
			return p, nil
		}
		return model.ObjectProperties{}, fmt.Errorf("must be a map or model.ObjectProperties")
	}
	var props model.ObjectProperties
	if s, ok := m["content_type"].(string); ok {
		props.ContentType = s
	}
	if s, ok := m["content_encoding"].(string); ok {
		props.ContentEncoding = s
	}
	if s, ok := m["content_disposition"].(string); ok {
		props.ContentDisposition = s
	}
	if s, ok := m["content_language"].(string); ok {
		props.ContentLanguage = s
	}
	if s, ok := m["cache_control"].(string); ok {
		props.CacheControl = s
	}
	if s, ok := m["storage_class"].(string); ok {
		props.StorageClass = model.StorageClass(s)
	}
	return props, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
