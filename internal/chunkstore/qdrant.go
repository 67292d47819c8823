package chunkstore

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("answerd.chunkstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantOptions holds configuration for the Qdrant gRPC vector index.
type QdrantOptions struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334.
	Port int

	// Collection is the collection holding chunk embeddings.
	Collection string

	// VectorSize is the embedding dimension. MUST match the embedder.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry count for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size. Default: 50MB.
	MaxMessageSize int
}

func (o *QdrantOptions) applyDefaults() {
	if o.Port == 0 {
		o.Port = 6334
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = time.Second
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 50 * 1024 * 1024
	}
}

func (o QdrantOptions) validate() error {
	if o.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, o.Port)
	}
	if o.Collection == "" || !collectionNamePattern.MatchString(o.Collection) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q",
			ErrInvalidConfig, o.Collection)
	}
	if o.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransientError reports whether a gRPC error is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// qdrantIndex implements VectorIndex over Qdrant's native gRPC client.
//
// The gRPC transport (port 6334) avoids the HTTP layer's payload limits and
// uses binary protobuf encoding. The original chunk id is preserved in the
// point payload; the Qdrant point id is a UUID derived from it when possible.
type qdrantIndex struct {
	client *qdrant.Client
	opts   QdrantOptions
}

// newQdrantIndex creates a Qdrant-backed vector index and verifies the
// connection with a health check.
func newQdrantIndex(opts QdrantOptions) (*qdrantIndex, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if !opts.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		UseTLS: opts.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMessageSize),
				grpc.MaxCallSendMsgSize(opts.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &qdrantIndex{client: client, opts: opts}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrConnectionFailed, err)
	}

	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the collection if it does not exist.
func (q *qdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.opts.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.opts.Collection, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.opts.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.opts.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", q.opts.Collection, err)
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC failures.
func (q *qdrantIndex) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := q.opts.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == q.opts.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, q.opts.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Add indexes chunks that already carry embeddings.
func (q *qdrantIndex) Add(ctx context.Context, chunks []Chunk) error {
	ctx, span := qdrantTracer.Start(ctx, "qdrantIndex.Add")
	defer span.End()
	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", q.opts.Collection),
	)

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Embedding) != q.opts.VectorSize {
			return fmt.Errorf("%w: chunk %s has dimension %d, index expects %d",
				ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), q.opts.VectorSize)
		}

		payload := map[string]*qdrant.Value{
			"id":          {Kind: &qdrant.Value_StringValue{StringValue: chunk.ID}},
			"document_id": {Kind: &qdrant.Value_StringValue{StringValue: chunk.DocumentID}},
		}

		var pointID *qdrant.PointId
		if _, err := uuid.Parse(chunk.ID); err == nil {
			pointID = qdrant.NewIDUUID(chunk.ID)
		} else {
			pointID = qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ID)).String())
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID,
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: payload,
		}
	}

	err := q.retryOperation(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.opts.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", q.opts.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to k hits ranked by similarity descending.
func (q *qdrantIndex) Query(ctx context.Context, embedding []float32, k int) ([]VectorHit, error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrantIndex.Query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("k", k),
		attribute.String("collection", q.opts.Collection),
	)

	if len(embedding) != q.opts.VectorSize {
		return nil, fmt.Errorf("%w: got %d, index expects %d",
			ErrDimensionMismatch, len(embedding), q.opts.VectorSize)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	var results []*qdrant.ScoredPoint
	err := q.retryOperation(ctx, "query", func() error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.opts.Collection,
			Query:          qdrant.NewQuery(embedding...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", q.opts.Collection, err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, point := range results {
		hit := VectorHit{Score: point.Score}
		if point.Payload != nil {
			if v, ok := point.Payload["id"]; ok {
				if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
					hit.ID = sv.StringValue
				}
			}
		}
		if hit.ID == "" {
			// Point without a payload id cannot be joined back to a chunk
			continue
		}
		hits = append(hits, hit)
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

func (q *qdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
