package delta

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	addressKey    = "address"
	addressPrefix = addressKey + "."
)

/*
Reconstruct normalizes a raw update delta into a canonical record-shaped
partial document. The feed delivers deltas in a mixed representation: dotted
paths like "address.line1", a single nested "address" object, or both.

Dotted address paths are merged into one nested address object. A bare
"address" key means the whole group was replaced at the source: it sets
fullReplace and its value wins over any dotted fragments, so that fields
absent from the replacement are dropped instead of left stale. Any other key
is copied as-is.
*/
func Reconstruct(updated bson.M) (doc bson.M, fullReplace bool) {
	doc = make(bson.M, len(updated))
	var merged bson.M

	for key, value := range updated {
		switch {
		case key == addressKey:
			fullReplace = true
			if addr, ok := asDocument(value); ok {
				doc[addressKey] = addr
			} else {
				doc[addressKey] = value
			}
		case strings.HasPrefix(key, addressPrefix):
			if merged == nil {
				merged = bson.M{}
			}
			merged[strings.TrimPrefix(key, addressPrefix)] = value
		default:
			doc[key] = value
		}
	}

	// Wholesale replacement overrides partial merging for the group.
	if merged != nil && !fullReplace {
		doc[addressKey] = merged
	}
	return doc, fullReplace
}

// Expand re-expands a canonical partial document to the dotted-path form
// used in a $set. When fullReplace is set the address field is kept as a
// whole-object replacement instead of individual paths.
func Expand(doc bson.M, fullReplace bool) bson.M {
	out := make(bson.M, len(doc))
	for key, value := range doc {
		if key == addressKey && !fullReplace {
			if addr, ok := asDocument(value); ok {
				for sub, v := range addr {
					out[addressPrefix+sub] = v
				}
				continue
			}
		}
		out[key] = value
	}
	return out
}

func asDocument(value interface{}) (bson.M, bool) {
	switch doc := value.(type) {
	case bson.M:
		return doc, true
	case map[string]interface{}:
		out := make(bson.M, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out, true
	case bson.D:
		out := make(bson.M, len(doc))
		for _, elem := range doc {
			out[elem.Key] = elem.Value
		}
		return out, true
	default:
		return nil, false
	}
}
