// Package archive stores batches the writer gave up on in S3-compatible
// object storage as JSON lines, one point per line.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"depth-whale-monitor/internal/batch"
	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
)

// ClientConfig holds the object store connection. Endpoint is empty for AWS
// S3 and set for MinIO, R2 and similar providers.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	// Prefix is the key prefix for archived batches.
	Prefix string
}

// objectStore is the subset of *s3.Client the archive uses.
type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// DeadLetter implements batch.DeadLetter.
type DeadLetter struct {
	s3     objectStore
	bucket string
	prefix string
	logger *log.Logger

	seq atomic.Int64
	now func() time.Time
}

var _ batch.DeadLetter = (*DeadLetter)(nil)

// New creates a DeadLetter. Static credentials are used when AccessKey is
// set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg ClientConfig, logger *log.Logger) (*DeadLetter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newDeadLetter(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

func newDeadLetter(store objectStore, bucket, prefix string, logger *log.Logger) *DeadLetter {
	if logger == nil {
		logger = log.Default()
	}
	return &DeadLetter{
		s3:     store,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Health checks that the bucket is reachable.
func (d *DeadLetter) Health(ctx context.Context) error {
	_, err := d.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return fmt.Errorf("archive: head bucket %s: %w", d.bucket, err)
	}
	return nil
}

// Archive uploads points to {prefix}/{symbol}/{unix-ms}-{n}.jsonl with the
// drop cause in the object metadata.
func (d *DeadLetter) Archive(ctx context.Context, points []domain.Point, cause error) error {
	if len(points) == 0 {
		return nil
	}

	body, err := Encode(points)
	if err != nil {
		return err
	}

	key := d.key(points[0].Symbol())
	meta := map[string]string{"points": fmt.Sprint(len(points))}
	if cause != nil {
		meta["cause"] = truncate(cause.Error(), 1024)
	}

	_, err = d.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
		Metadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}

	observability.RecordDeadLetter()
	d.logger.Printf("archived %d dropped points to s3://%s/%s", len(points), d.bucket, key)
	return nil
}

func (d *DeadLetter) key(symbol string) string {
	if symbol == "" {
		symbol = "unknown"
	}
	n := d.seq.Add(1)
	return path.Join(d.prefix, symbol, fmt.Sprintf("%d-%d.jsonl", d.now().UnixMilli(), n))
}

type record struct {
	Kind        domain.PointKind        `json:"kind"`
	SessionID   uuid.UUID               `json:"session_id"`
	Symbol      string                  `json:"symbol"`
	TimestampMs int64                   `json:"timestamp_ms"`
	Event       *domain.WhaleEvent      `json:"event,omitempty"`
	Stats       *domain.AggregateStats  `json:"stats,omitempty"`
	Depth       *domain.DepthLevelPoint `json:"depth,omitempty"`
}

// Encode renders points as JSON lines.
func Encode(points []domain.Point) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, p := range points {
		err := enc.Encode(record{
			Kind:        p.Kind,
			SessionID:   p.SessionID,
			Symbol:      p.Symbol(),
			TimestampMs: p.TimestampMs(),
			Event:       p.Event,
			Stats:       p.Stats,
			Depth:       p.Depth,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: encode point %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Decode reads points written by Encode, e.g. to replay an archived batch
// into a sink.
func Decode(r io.Reader) ([]domain.Point, error) {
	var points []domain.Point
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("archive: line %d: %w", line, err)
		}
		p := domain.Point{Kind: rec.Kind, SessionID: rec.SessionID, Event: rec.Event, Stats: rec.Stats, Depth: rec.Depth}
		if !p.Valid() {
			return nil, fmt.Errorf("archive: line %d: no %s payload", line, rec.Kind)
		}
		points = append(points, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("archive: read: %w", err)
	}
	return points, nil
}

func normaliseEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
