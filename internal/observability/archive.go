package observability

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/askmany/askmany/pkg/types"
)

// ArchiveConfig contains configuration for S3 outcome archival.
type ArchiveConfig struct {
	Bucket        string        // S3 bucket name
	Region        string        // AWS region
	AccessKeyID   string        // AWS access key (optional, default chain if empty)
	SecretKey     string        // AWS secret key (optional)
	Endpoint      string        // Custom endpoint for S3-compatible stores (MinIO, etc.)
	Prefix        string        // Key prefix, e.g. "askmany/outcomes"
	FlushInterval time.Duration // How often queued entries are uploaded
	BatchSize     int           // Max queued entries before an early flush
}

// ArchiveEntry is one archived model outcome, written as a JSONL row.
type ArchiveEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
	Model          string    `json:"model"`
	ModelID        int64     `json:"model_id"`
	Succeeded      bool      `json:"succeeded"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	TokensUsed     *int      `json:"tokens_used,omitempty"`
	Error          string    `json:"error,omitempty"`
	CacheHit       bool      `json:"cache_hit,omitempty"`
}

// Archiver batches dispatch outcomes and uploads them to S3 as
// date-partitioned JSONL objects. Response text is not archived; the
// store keeps full responses, the archive keeps the operational record.
type Archiver struct {
	cfg    ArchiveConfig
	client *s3.Client

	mu    sync.Mutex
	queue []ArchiveEntry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewArchiver creates an archiver and starts its background flush loop.
func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	a := &Archiver{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		queue:  make([]ArchiveEntry, 0, cfg.BatchSize),
		stopCh: make(chan struct{}),
	}

	a.wg.Add(1)
	go a.flushLoop()

	return a, nil
}

// RecordOutcomes queues every outcome of a finished dispatch.
func (a *Archiver) RecordOutcomes(requestID string, outcomes []types.RequestOutcome) {
	now := time.Now().UTC()
	for i := range outcomes {
		o := &outcomes[i]
		a.enqueue(ArchiveEntry{
			Timestamp:      now,
			RequestID:      requestID,
			Model:          o.ModelName,
			ModelID:        o.ModelID,
			Succeeded:      o.Succeeded,
			ElapsedSeconds: o.Elapsed,
			TokensUsed:     o.TokensUsed,
			Error:          o.Error,
		})
	}
}

// Record queues a single entry.
func (a *Archiver) Record(entry ArchiveEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	a.enqueue(entry)
}

func (a *Archiver) enqueue(entry ArchiveEntry) {
	a.mu.Lock()
	a.queue = append(a.queue, entry)
	full := len(a.queue) >= a.cfg.BatchSize
	a.mu.Unlock()

	if full {
		go a.flush(context.Background()) //nolint:errcheck
	}
}

func (a *Archiver) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush(context.Background()) //nolint:errcheck
		case <-a.stopCh:
			return
		}
	}
}

func (a *Archiver) flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.queue) == 0 {
		a.mu.Unlock()
		return nil
	}
	entries := a.queue
	a.queue = make([]ArchiveEntry, 0, a.cfg.BatchSize)
	a.mu.Unlock()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for i := range entries {
		if err := encoder.Encode(&entries[i]); err != nil {
			continue
		}
	}

	key := a.objectKey(time.Now().UTC())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: upload outcomes: %w", err)
	}

	return nil
}

// objectKey builds a date-partitioned key so downstream query engines
// can prune by day.
func (a *Archiver) objectKey(t time.Time) string {
	datePrefix := fmt.Sprintf("year=%d/month=%02d/day=%02d",
		t.Year(), t.Month(), t.Day())
	filename := fmt.Sprintf("outcomes_%d.jsonl", t.UnixNano())

	if a.cfg.Prefix != "" {
		return path.Join(a.cfg.Prefix, datePrefix, filename)
	}
	return path.Join(datePrefix, filename)
}

// Shutdown stops the flush loop and uploads any remaining entries.
func (a *Archiver) Shutdown(ctx context.Context) error {
	close(a.stopCh)
	a.wg.Wait()
	return a.flush(ctx)
}
