package dataset

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crimewatch/crime"
)

// MongoSource reads and writes incidents in a MongoDB collection. Documents
// loaded by other tools are accepted as long as they use the export's column
// names; numeric columns may be stored as ints, doubles or strings.
type MongoSource struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoSource(ctx context.Context, uri, database, collection string) (*MongoSource, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoSource{client: client, coll: client.Database(database).Collection(collection)}, nil
}

func (s *MongoSource) Fetch(ctx context.Context) ([]crime.Record, error) {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var records []crime.Record
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		records = append(records, documentToRecord(doc))
	}
	return records, cur.Err()
}

func (s *MongoSource) InsertRecords(ctx context.Context, records []crime.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}
	res, err := s.coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("mongo insert: %w", err)
	}
	return len(res.InsertedIDs), nil
}

func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func documentToRecord(doc bson.M) crime.Record {
	return crime.Record{
		IncidentNumber:     docString(doc[crime.ColumnIncidentNumber]),
		OffenseCode:        docInt(doc[crime.ColumnOffenseCode]),
		OffenseCodeGroup:   docString(doc[crime.ColumnOffenseCodeGroup]),
		OffenseDescription: docString(doc[crime.ColumnOffenseDescription]),
		District:           docString(doc[crime.ColumnDistrict]),
		ReportingArea:      docString(doc[crime.ColumnReportingArea]),
		Shooting:           docBool(doc[crime.ColumnShooting]),
		OccurredOn:         docTime(doc[crime.ColumnOccurredOnDate]),
		Year:               docInt(doc[crime.ColumnYear]),
		Month:              docInt(doc[crime.ColumnMonth]),
		DayOfWeek:          docString(doc[crime.ColumnDayOfWeek]),
		Hour:               docInt(doc[crime.ColumnHour]),
		UCRPart:            docString(doc[crime.ColumnUCRPart]),
		Street:             docString(doc[crime.ColumnStreet]),
		Lat:                docFloat(doc[crime.ColumnLat]),
		Long:               docFloat(doc[crime.ColumnLong]),
	}
}

func docString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case int32:
		return strconv.Itoa(int(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func docInt(v interface{}) *int {
	switch x := v.(type) {
	case int32:
		return crime.IntPtr(int(x))
	case int64:
		return crime.IntPtr(int(x))
	case float64:
		if math.IsNaN(x) || x != math.Trunc(x) {
			return nil
		}
		return crime.IntPtr(int(x))
	case string:
		return parseInt(strings.TrimSpace(x))
	default:
		return nil
	}
}

func docFloat(v interface{}) *float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return crime.FloatPtr(x)
	case int32:
		return crime.FloatPtr(float64(x))
	case int64:
		return crime.FloatPtr(float64(x))
	case string:
		return parseFloat(strings.TrimSpace(x))
	default:
		return nil
	}
}

func docBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return parseShooting(strings.TrimSpace(x))
	case int32:
		return x != 0
	case int64:
		return x != 0
	default:
		return false
	}
}

func docTime(v interface{}) *time.Time {
	switch x := v.(type) {
	case primitive.DateTime:
		t := x.Time().UTC()
		return &t
	case time.Time:
		return &x
	case string:
		return parseTime(strings.TrimSpace(x))
	default:
		return nil
	}
}
