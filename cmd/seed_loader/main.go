package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/anonwell/maskpipe/pkg/models"
)

// Synthetic seed data for exercising the pipeline end to end.
var (
	firstNames = []string{"Jane", "John", "Maria", "Ahmed", "Wei", "Olga", "Pierre", "Aisha", "Carlos", "Yuki"}
	lastNames  = []string{"Doe", "Smith", "Garcia", "Hassan", "Chen", "Ivanova", "Dubois", "Okafor", "Silva", "Tanaka"}
	streets    = []string{"Main St", "High St", "Station Rd", "Church Ln", "Park Ave", "Mill Rd"}
	cities     = []string{"Springfield", "Riverton", "Lakewood", "Fairview", "Georgetown"}
	countries  = []string{"US", "GB", "DE", "FR", "NL"}
)

func randomPerson(r *rand.Rand) models.Person {
	first := firstNames[r.Intn(len(firstNames))]
	last := lastNames[r.Intn(len(lastNames))]
	return models.Person{
		FirstName: first,
		LastName:  last,
		Email:     fmt.Sprintf("%s.%s%d@example.com", first, last, r.Intn(1000)),
		Address: models.Address{
			Line1:    fmt.Sprintf("%d %s", 1+r.Intn(999), streets[r.Intn(len(streets))]),
			Postcode: fmt.Sprintf("%05d", r.Intn(100000)),
			City:     cities[r.Intn(len(cities))],
			Country:  countries[r.Intn(len(countries))],
		},
		CreatedAt: time.Now().UTC(),
	}
}

func main() {

	var uri string
	var db string
	var coll string
	var count int
	flag.StringVar(&uri, "uri", os.Getenv("MASKPIPE_MONGO_URI"), "mongodb connection string")
	flag.StringVar(&db, "db", "people", "the source database")
	flag.StringVar(&coll, "collection", "persons", "the source collection")
	flag.IntVar(&count, "count", 1000, "number of records to insert")

	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if uri == "" {
		logger.Error().Msg("no connection string, use -uri or MASKPIPE_MONGO_URI")
		return
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect")
		return
	}
	defer client.Disconnect(context.Background())

	collection := client.Database(db).Collection(coll)
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < count; i++ {
		person := randomPerson(r)
		res, err := collection.InsertOne(context.Background(), person)
		if err != nil {
			logger.Error().Err(err).Msg("failed to insert record")
			continue
		}
		logger.Info().
			Str("firstName", person.FirstName).
			Str("lastName", person.LastName).
			Str("email", person.Email).
			Interface("id", res.InsertedID).
			Msg("record")

		// Don't finish too fast, leave the change feed something to chew on
		time.Sleep(20 * time.Millisecond)
	}
	logger.Info().Msg("done")

}
