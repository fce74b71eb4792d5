package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Payload keys stored alongside each qdrant point. Metadata is stored flat.
const (
	payloadContent = "content"
)

// qdrantStore keeps collections in a Qdrant server. Vectors are fetched with
// each search so diversity re-ranking runs client-side.
type qdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
	// cfg holds the resolved connection settings.
	cfg QdrantConfig
}

// openQdrant creates a client and checks the server answers a health probe.
func openQdrant(ctx context.Context, cfg QdrantConfig) (*qdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant client: %w: %w", rag.ErrConfiguration, err)
	}
	s := &qdrantStore{client: client, cfg: cfg}
	if err := s.ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// pointID derives a stable qdrant UUID from a chunk id.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String())
}

// ensureCollection creates the collection sized for dims if it does not exist.
func (s *qdrantStore) ensureCollection(ctx context.Context, collection string, dims uint64) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return rag.BackendFailure("vectorstore: qdrant collection exists", err)
	}
	if exists {
		return nil
	}
	if s.cfg.VectorSize > 0 {
		dims = s.cfg.VectorSize
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dims,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return rag.BackendFailure(fmt.Sprintf("vectorstore: qdrant create collection %q", collection), err)
	}
	return nil
}

func (s *qdrantStore) upsert(ctx context.Context, collection string, recs []record) error {
	if err := s.ensureCollection(ctx, collection, uint64(len(recs[0].vector))); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(recs))
	for _, r := range recs {
		payload := map[string]any{payloadContent: r.content}
		for k, v := range r.metadata {
			payload[k] = v
		}
		payload[rag.MetaChunkID] = r.id
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(r.id),
			Vectors: qdrant.NewVectors(r.vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return rag.BackendFailure("vectorstore: qdrant upsert", err)
	}
	return nil
}

// replace deletes the document's points by payload filter, then upserts.
// Qdrant has no multi-operation transaction, so a concurrent reader may
// briefly see the document missing.
func (s *qdrantStore) replace(ctx context.Context, collection, docID string, recs []record) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return rag.BackendFailure("vectorstore: qdrant collection exists", err)
	}
	if exists {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(rag.MetaDocID, docID)},
			}),
		})
		if err != nil {
			return rag.BackendFailure("vectorstore: qdrant delete "+docID, err)
		}
	}
	if len(recs) == 0 {
		return nil
	}
	return s.upsert(ctx, collection, recs)
}

func (s *qdrantStore) nearest(ctx context.Context, collection string, query []float32, limit int) ([]record, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, rag.BackendFailure("vectorstore: qdrant collection exists", err)
	}
	if !exists {
		return nil, nil
	}

	n := uint64(limit)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, rag.BackendFailure("vectorstore: qdrant query", err)
	}

	recs := make([]record, 0, len(results))
	for _, p := range results {
		r := record{metadata: make(map[string]string)}
		for k, v := range p.GetPayload() {
			if k == payloadContent {
				r.content = v.GetStringValue()
				continue
			}
			r.metadata[k] = v.GetStringValue()
		}
		r.id = r.metadata[rag.MetaChunkID]
		r.vector = denseVector(p.GetVectors())
		recs = append(recs, r)
	}
	return recs, nil
}

func (s *qdrantStore) drop(ctx context.Context, collection string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return rag.BackendFailure("vectorstore: qdrant collection exists", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return rag.BackendFailure(fmt.Sprintf("vectorstore: qdrant delete collection %q", collection), err)
	}
	return nil
}

func (s *qdrantStore) count(ctx context.Context, collection string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, rag.BackendFailure("vectorstore: qdrant collection exists", err)
	}
	if !exists {
		return 0, nil
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, rag.BackendFailure("vectorstore: qdrant count", err)
	}
	return int(n), nil
}

func (s *qdrantStore) ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return rag.BackendFailure("vectorstore: qdrant health check", err)
	}
	return nil
}

func (s *qdrantStore) location() string {
	return fmt.Sprintf("qdrant://%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *qdrantStore) close() error {
	return s.client.Close()
}

// denseVector extracts the unnamed dense vector of a scored point. Newer
// servers fill the dense oneof; older ones only the legacy data field.
func denseVector(v *qdrant.VectorsOutput) []float32 {
	vec := v.GetVector()
	if dense := vec.GetDense().GetData(); len(dense) > 0 {
		return dense
	}
	return vec.GetData()
}
