// Package backup uploads database snapshots to S3-compatible storage and
// prunes old ones.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/config"
)

// Snapshotter writes a consistent copy of the database to a local file
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// ObjectAPI is the subset of the S3 client used for backups
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Result describes one completed backup
type Result struct {
	Key     string
	Size    int64
	Deleted []string
}

// Runner takes snapshots and ships them to a bucket
type Runner struct {
	db        Snapshotter
	client    ObjectAPI
	bucket    string
	prefix    string
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewClient builds an S3 client for cfg. A custom endpoint (R2, Tigris,
// MinIO) switches to path-style addressing.
func NewClient(ctx context.Context, cfg config.Backup) (*s3.Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("backup S3 credentials not configured (BACKUP_BUCKET_NAME, BACKUP_ACCESS_KEY_ID, BACKUP_SECRET_ACCESS_KEY)")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewRunner returns a runner writing under cfg.Prefix in cfg.Bucket
func NewRunner(db Snapshotter, client ObjectAPI, cfg config.Backup, log zerolog.Logger) *Runner {
	return &Runner{
		db:        db,
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/") + "/database/",
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		log:       log,
		now:       time.Now,
	}
}

// Run snapshots the database, uploads it and deletes backups past retention.
// Pruning failures are logged and do not fail the backup.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	started := r.now().UTC()
	name := fmt.Sprintf("wedding-%s.db", started.Format("2006-01-02T150405Z"))

	dir, err := os.MkdirTemp("", "wedding-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, name)
	if err := r.db.Snapshot(ctx, local); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}

	res := &Result{Key: r.prefix + name}
	if res.Size, err = r.upload(ctx, local, res.Key); err != nil {
		return nil, fmt.Errorf("upload to S3: %w", err)
	}
	r.log.Info().Str("key", res.Key).Int64("size", res.Size).Msg("Backup uploaded")

	if res.Deleted, err = r.prune(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Failed to clean old backups")
	}
	return res, nil
}

func (r *Runner) upload(ctx context.Context, path, key string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// prune removes backups older than the retention period. A zero retention keeps everything.
func (r *Runner) prune(ctx context.Context) ([]string, error) {
	if r.retention <= 0 {
		return nil, nil
	}
	cutoff := r.now().Add(-r.retention)

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	var deleted []string
	for _, key := range toDelete {
		_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("Failed to delete old backup")
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}

// Schedule runs a backup every day at hour (local time) until ctx is done
func (r *Runner) Schedule(ctx context.Context, hour int) {
	for {
		next := nextRun(r.now(), hour)
		r.log.Info().Time("next", next).Msg("Next backup scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := r.Run(ctx); err != nil {
			r.log.Error().Err(err).Msg("Backup failed")
		}
	}
}

func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
