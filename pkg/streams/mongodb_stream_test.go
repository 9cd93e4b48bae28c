package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/anonwell/maskpipe/pkg/events"
)

func rawToken(t *testing.T, data string) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(bson.M{"_data": data})
	require.NoError(t, err)
	return bson.Raw(raw)
}

func TestNormalizeEvent_Insert(t *testing.T) {
	token := rawToken(t, "t1")
	raw := bson.M{
		"operationType": "insert",
		"documentKey":   bson.M{"_id": "p1"},
		"fullDocument": bson.M{
			"_id":       "p1",
			"firstName": "Jane",
		},
	}

	event := normalizeEvent(raw, token)

	assert.Equal(t, events.InsertAction, event.Action)
	assert.Equal(t, "p1", event.ID)
	assert.Equal(t, bson.M{"_id": "p1", "firstName": "Jane"}, event.FullDocument)
	assert.Equal(t, token, event.ResumeToken)
	assert.Nil(t, event.UpdatedFields)
}

func TestNormalizeEvent_Update(t *testing.T) {
	raw := bson.M{
		"operationType": "update",
		"documentKey":   bson.M{"_id": "p2"},
		"updateDescription": bson.M{
			"updatedFields": bson.M{
				"address.line1": "456 New St",
				"email":         "new@example.com",
			},
			"removedFields":   bson.A{"middleName"},
			"truncatedArrays": bson.A{},
		},
	}

	event := normalizeEvent(raw, rawToken(t, "t2"))

	assert.Equal(t, events.UpdateAction, event.Action)
	assert.Equal(t, "p2", event.ID)
	assert.Equal(t, bson.M{"address.line1": "456 New St", "email": "new@example.com"}, event.UpdatedFields)
	assert.Equal(t, []string{"middleName"}, event.RemovedFields)
	assert.True(t, event.HasFieldDelta())
}

func TestNormalizeEvent_RemovalOnlyUpdate(t *testing.T) {
	raw := bson.M{
		"operationType": "update",
		"documentKey":   bson.M{"_id": "p3"},
		"updateDescription": bson.M{
			"removedFields": bson.A{"email"},
		},
	}

	event := normalizeEvent(raw, rawToken(t, "t3"))

	assert.False(t, event.HasFieldDelta())
	assert.Equal(t, []string{"email"}, event.RemovedFields)
}

func TestNormalizeEvent_OrderedDocuments(t *testing.T) {
	// The driver may hand back bson.D depending on decode configuration.
	raw := bson.M{
		"operationType": "update",
		"documentKey":   bson.D{{Key: "_id", Value: "p4"}},
		"updateDescription": bson.D{
			{Key: "updatedFields", Value: bson.D{{Key: "lastName", Value: "Smith"}}},
		},
	}

	event := normalizeEvent(raw, rawToken(t, "t4"))

	assert.Equal(t, "p4", event.ID)
	assert.Equal(t, bson.M{"lastName": "Smith"}, event.UpdatedFields)
}

func TestNormalizeEvent_UnknownOperation(t *testing.T) {
	event := normalizeEvent(bson.M{"operationType": "invalidate"}, rawToken(t, "t5"))
	assert.Equal(t, "invalidate", event.Action)
	assert.Nil(t, event.ID)
}

func TestBackoff_GrowsToCeilingAndResets(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	for i := 0; i < 10; i++ {
		b.Next()
	}
	assert.Equal(t, 30*time.Second, b.Next(), "delay must cap at the ceiling")

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}
