// Package semantic owns all Qdrant operations. It indexes one embedding per
// ingested document and answers near-duplicate queries: a new upload whose
// text embedding is almost identical to an already-indexed document for the
// same VIN is a rescan, not new information.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NearDuplicateScore is the cosine similarity at or above which two document
// texts are treated as the same document.
const NearDuplicateScore = 0.97

// DocumentIndex stores document embeddings in Qdrant.
type DocumentIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string) (*DocumentIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &DocumentIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the gRPC connection.
func (d *DocumentIndex) Close() error { return d.conn.Close() }

// EnsureCollection creates the cosine-distance collection if absent.
func (d *DocumentIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := d.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == d.collection {
			return nil
		}
	}

	_, err = d.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", d.collection, err)
	}
	return nil
}

// Index stores one document embedding.
func (d *DocumentIndex) Index(ctx context.Context, rec DocumentVector) error {
	payload := map[string]*pb.Value{
		"vin":           stringValue(rec.VIN),
		"document_id":   stringValue(rec.DocumentID),
		"document_type": stringValue(rec.DocumentType),
		"file_name":     stringValue(rec.FileName),
	}

	wait := true
	_, err := d.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.DocumentID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Embedding}},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("semantic: index document %s: %w", rec.DocumentID, err)
	}
	return nil
}

// NearDuplicate reports whether an embedding is a near duplicate of an
// already-indexed document for the same VIN.
func (d *DocumentIndex) NearDuplicate(ctx context.Context, vin string, embedding []float32) (Match, bool, error) {
	resp, err := d.points.Search(ctx, &pb.SearchPoints{
		CollectionName: d.collection,
		Vector:         embedding,
		Limit:          1,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{fieldMatch("vin", vin)},
		},
	})
	if err != nil {
		return Match{}, false, fmt.Errorf("semantic: near-duplicate search: %w", err)
	}

	hits := resp.GetResult()
	if len(hits) == 0 {
		return Match{}, false, nil
	}
	hit := hits[0]
	m := Match{
		DocumentID: hit.GetId().GetUuid(),
		Score:      hit.GetScore(),
	}
	if p := hit.GetPayload(); p != nil {
		m.FileName = p["file_name"].GetStringValue()
		m.DocumentType = p["document_type"].GetStringValue()
	}
	return m, m.Score >= NearDuplicateScore, nil
}

// Remove deletes a document's embedding.
func (d *DocumentIndex) Remove(ctx context.Context, documentID string) error {
	wait := true
	_, err := d.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: documentID}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: remove document %s: %w", documentID, err)
	}
	return nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
