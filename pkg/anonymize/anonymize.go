package anonymize

import (
	"crypto/md5"
	"math/big"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Token alphabet: lowercase, then uppercase, then digits. The order is part
// of the persisted format and must not change.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const tokenLength = 8

var base = big.NewInt(int64(len(alphabet)))

// Token derives a deterministic token from s: the md5 digest of its UTF-8
// bytes read as an unsigned big integer, decomposed base 62 least
// significant digit first, truncated to 8 characters. Digests that exhaust
// in fewer than 8 division steps yield a shorter token; the output is never
// padded, to stay compatible with previously written data.
func Token(s string) string {
	sum := md5.Sum([]byte(s))
	value := new(big.Int).SetBytes(sum[:])
	mod := new(big.Int)

	var b strings.Builder
	b.Grow(tokenLength)
	for value.Sign() > 0 && b.Len() < tokenLength {
		value.DivMod(value, base, mod)
		b.WriteByte(alphabet[mod.Int64()])
	}
	return b.String()
}

// Email tokenizes the local part of an email address and preserves the
// domain verbatim.
func Email(s string) string {
	i := strings.Index(s, "@")
	if i < 0 {
		return Token(s)
	}
	return Token(s[:i]) + s[i:]
}

/*
Document anonymizes the sensitive string fields of a person-shaped document
and returns a new document. It is pure and shape-preserving: only fields
present in the input appear in the output, so a partial document yields a
partial result and callers merge rather than treat absence as deletion.

Policy: firstName and lastName are tokenized; the email local part is
tokenized with the domain kept; address.line1, address.line2 and
address.postcode are tokenized independently; address.city, address.state,
address.country and everything else pass through verbatim.
*/
func Document(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for key, value := range doc {
		switch key {
		case "firstName", "lastName":
			out[key] = tokenizeValue(value)
		case "email":
			if s, ok := value.(string); ok {
				out[key] = Email(s)
			} else {
				out[key] = value
			}
		case "address":
			out[key] = addressValue(value)
		default:
			out[key] = value
		}
	}
	return out
}

func addressValue(value interface{}) interface{} {
	addr, ok := asDocument(value)
	if !ok {
		return value
	}
	out := make(bson.M, len(addr))
	for key, v := range addr {
		switch key {
		case "line1", "line2", "postcode":
			out[key] = tokenizeValue(v)
		default:
			out[key] = v
		}
	}
	return out
}

func tokenizeValue(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		return Token(s)
	}
	return value
}

// asDocument converts the document representations the driver might hand us
// into a bson.M, mirroring the tolerance needed when decoding change events.
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
