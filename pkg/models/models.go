package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Address is the nested address group of a person record.
// line1, line2 and postcode are considered sensitive; city, state and
// country are kept verbatim by the anonymizer.
type Address struct {
	Line1    string `bson:"line1" json:"line1"`
	Line2    string `bson:"line2,omitempty" json:"line2,omitempty"`
	Postcode string `bson:"postcode" json:"postcode"`
	City     string `bson:"city" json:"city"`
	State    string `bson:"state,omitempty" json:"state,omitempty"`
	Country  string `bson:"country" json:"country"`
}

// Person is the source record schema. Identifiers and timestamps pass
// through the pipeline untouched.
type Person struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	FirstName string        `bson:"firstName" json:"firstName"`
	LastName  string        `bson:"lastName" json:"lastName"`
	Email     string        `bson:"email" json:"email"`
	Address   Address       `bson:"address" json:"address"`
	CreatedAt time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}
