package anonymize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestToken_Deterministic(t *testing.T) {
	inputs := []string{"Jane", "Doe", "jane.doe", "", "ünïcödé", "a very long input string that exceeds the digest size"}

	for _, input := range inputs {
		first := Token(input)
		second := Token(input)
		assert.Equal(t, first, second, "token for %q must be stable", input)
	}
}

func TestToken_Alphabet(t *testing.T) {
	inputs := []string{"Jane", "Doe", "jane.doe@example.com", "123 Main St", "90210"}

	for _, input := range inputs {
		token := Token(input)
		require.LessOrEqual(t, len(token), 8)
		for _, c := range token {
			assert.True(t, strings.ContainsRune(alphabet, c),
				"token %q for %q contains %q outside [a-zA-Z0-9]", token, input, c)
		}
	}
}

func TestToken_DistinguishesInputs(t *testing.T) {
	assert.NotEqual(t, Token("Jane"), Token("Doe"))
	assert.NotEqual(t, Token("Jane"), Token("jane"))
}

func TestEmail_PreservesDomain(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		domain string
	}{
		{name: "simple", email: "jane.doe@example.com", domain: "example.com"},
		{name: "subdomain", email: "j@mail.corp.example.org", domain: "mail.corp.example.org"},
		{name: "empty local part", email: "@example.com", domain: "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anonymized := Email(tt.email)
			at := strings.Index(anonymized, "@")
			require.GreaterOrEqual(t, at, 0)
			assert.Equal(t, tt.domain, anonymized[at+1:])
			local := anonymized[:at]
			assert.NotEqual(t, tt.email[:strings.Index(tt.email, "@")], local)
		})
	}
}

func TestDocument_InsertScenario(t *testing.T) {
	doc := bson.M{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "jane.doe@example.com",
	}

	anonymized := Document(doc)

	first, ok := anonymized["firstName"].(string)
	require.True(t, ok)
	last, ok := anonymized["lastName"].(string)
	require.True(t, ok)
	email, ok := anonymized["email"].(string)
	require.True(t, ok)

	assert.Len(t, first, 8)
	assert.Len(t, last, 8)
	assert.NotEqual(t, first, last)
	assert.True(t, strings.HasSuffix(email, "@example.com"))
	assert.NotEqual(t, "jane.doe", strings.TrimSuffix(email, "@example.com"))
}

func TestDocument_AddressPolicy(t *testing.T) {
	doc := bson.M{
		"address": bson.M{
			"line1":    "123 Main St",
			"line2":    "Apt 4",
			"postcode": "90210",
			"city":     "Springfield",
			"state":    "IL",
			"country":  "US",
		},
	}

	anonymized := Document(doc)
	addr, ok := anonymized["address"].(bson.M)
	require.True(t, ok)

	assert.Equal(t, Token("123 Main St"), addr["line1"])
	assert.Equal(t, Token("Apt 4"), addr["line2"])
	assert.Equal(t, Token("90210"), addr["postcode"])
	assert.Equal(t, "Springfield", addr["city"])
	assert.Equal(t, "IL", addr["state"])
	assert.Equal(t, "US", addr["country"])
}

func TestDocument_PartialInputPartialOutput(t *testing.T) {
	doc := bson.M{"lastName": "Doe"}

	anonymized := Document(doc)

	assert.Len(t, anonymized, 1)
	assert.Equal(t, Token("Doe"), anonymized["lastName"])
	assert.NotContains(t, anonymized, "firstName")
	assert.NotContains(t, anonymized, "email")
}

func TestDocument_PassthroughFields(t *testing.T) {
	doc := bson.M{
		"_id":       "abc123",
		"createdAt": "2024-01-01T00:00:00Z",
		"firstName": 42, // wrong type stays untouched
	}

	anonymized := Document(doc)

	assert.Equal(t, "abc123", anonymized["_id"])
	assert.Equal(t, "2024-01-01T00:00:00Z", anonymized["createdAt"])
	assert.Equal(t, 42, anonymized["firstName"])
}

func TestDocument_DoesNotMutateInput(t *testing.T) {
	doc := bson.M{
		"firstName": "Jane",
		"address":   bson.M{"line1": "123 Main St", "city": "Springfield"},
	}

	Document(doc)

	assert.Equal(t, "Jane", doc["firstName"])
	assert.Equal(t, "123 Main St", doc["address"].(bson.M)["line1"])
}

func TestDocument_AddressAsBsonD(t *testing.T) {
	doc := bson.M{
		"address": bson.D{
			{Key: "line1", Value: "123 Main St"},
			{Key: "city", Value: "Springfield"},
		},
	}

	anonymized := Document(doc)
	addr, ok := anonymized["address"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, Token("123 Main St"), addr["line1"])
	assert.Equal(t, "Springfield", addr["city"])
}
