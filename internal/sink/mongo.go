package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
)

// farmDocument is the stored document shape. Location is GeoJSON so a
// 2dsphere index can serve $nearSphere queries.
type farmDocument struct {
	ID        bson.ObjectID    `bson:"_id,omitempty"`
	Name      string           `bson:"name"`
	Type      string           `bson:"type"`
	Status    string           `bson:"status"`
	Products  []string         `bson:"products"`
	Contact   model.Contact    `bson:"contact"`
	Location  geo.GeoJSONPoint `bson:"location"`
	Geohash   string           `bson:"geohash"`
	CreatedAt time.Time        `bson:"createdAt"`
}

// farmCollection is the slice of collection behavior the sink needs.
type farmCollection interface {
	countByName(ctx context.Context, name string) (int64, error)
	insert(ctx context.Context, doc *farmDocument) (string, error)
	near(ctx context.Context, center geo.Point, maxMeters float64, limit int) ([]farmDocument, error)
	ensureIndexes(ctx context.Context) error
}

// Mongo stores farms as documents.
type Mongo struct {
	client *mongo.Client
	coll   farmCollection
	now    func() time.Time
}

// OpenMongo connects to uri and uses database.collection.
func OpenMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	return &Mongo{
		client: client,
		coll:   mongoCollection{c: client.Database(database).Collection(collection)},
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Exists implements Sink.
func (m *Mongo) Exists(ctx context.Context, name string) (bool, error) {
	n, err := m.coll.countByName(ctx, name)
	if err != nil {
		return false, eris.Wrapf(err, "mongo: check %q", name)
	}
	return n > 0, nil
}

// Insert implements Sink. createdAt is set from the client clock.
func (m *Mongo) Insert(ctx context.Context, rec *model.FarmRecord) (string, error) {
	doc := &farmDocument{
		Name:      rec.Name,
		Type:      string(rec.Kind),
		Status:    string(rec.Status),
		Products:  rec.Products,
		Contact:   rec.Contact,
		Location:  rec.Location.GeoJSON(),
		Geohash:   rec.Geohash,
		CreatedAt: m.now(),
	}
	id, err := m.coll.insert(ctx, doc)
	if err != nil {
		return "", eris.Wrapf(err, "mongo: insert farm %q", rec.Name)
	}
	rec.ID = id
	rec.CreatedAt = doc.CreatedAt
	return id, nil
}

// Search implements Searcher.
func (m *Mongo) Search(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	docs, err := m.coll.near(ctx, center, radiusKm*1000, limit)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: search")
	}

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		loc, err := geo.FromGeoJSON(d.Location)
		if err != nil {
			return nil, eris.Wrapf(err, "mongo: decode location of %q", d.Name)
		}
		hits = append(hits, Hit{
			FarmRecord: model.FarmRecord{
				ID:        d.ID.Hex(),
				Name:      d.Name,
				Kind:      model.Kind(d.Type),
				Status:    model.Status(d.Status),
				Products:  d.Products,
				Contact:   d.Contact,
				Location:  loc,
				Geohash:   d.Geohash,
				CreatedAt: d.CreatedAt,
			},
			DistanceKm: geo.DistanceKm(center, loc),
		})
	}
	return sortHits(hits, limit), nil
}

// Migrate implements Migrator by creating the 2dsphere and name indexes.
func (m *Mongo) Migrate(ctx context.Context) error {
	return eris.Wrap(m.coll.ensureIndexes(ctx), "mongo: ensure indexes")
}

// Ping implements Sink.
func (m *Mongo) Ping(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return eris.Wrap(m.client.Ping(ctx, nil), "mongo: ping")
}

// Close implements Sink.
func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return eris.Wrap(m.client.Disconnect(ctx), "mongo: disconnect")
}

// mongoCollection adapts *mongo.Collection to farmCollection.
type mongoCollection struct {
	c *mongo.Collection
}

func (mc mongoCollection) countByName(ctx context.Context, name string) (int64, error) {
	return mc.c.CountDocuments(ctx, bson.M{"name": name}, options.Count().SetLimit(1))
}

func (mc mongoCollection) insert(ctx context.Context, doc *farmDocument) (string, error) {
	res, err := mc.c.InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

func (mc mongoCollection) near(ctx context.Context, center geo.Point, maxMeters float64, limit int) ([]farmDocument, error) {
	filter := bson.M{
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry":    center.GeoJSON(),
				"$maxDistance": maxMeters,
			},
		},
	}
	cur, err := mc.c.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var docs []farmDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (mc mongoCollection) ensureIndexes(ctx context.Context) error {
	_, err := mc.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index().SetName("location_2dsphere"),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_1"),
		},
	})
	return err
}
