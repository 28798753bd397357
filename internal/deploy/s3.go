package deploy

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

const (
	defaultS3Endpoint = "s3.amazonaws.com"
	s3UploadWorkers   = 8
)

// S3 uploads the bundle to an S3-compatible bucket under an optional prefix.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	region string
	out    *output.Writer
}

// NewS3 creates an S3 deployer. Bucket and credentials are required.
func NewS3(cfg *config.S3Config, out *output.Writer) (*S3, error) {
	if cfg == nil {
		cfg = &config.S3Config{}
	}
	if out == nil {
		out = output.Discard()
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, serrors.Configf("deploy.s3.bucket is required (or set %s)", config.EnvS3Bucket)
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, serrors.Environmentf("S3 credentials are missing: set %s and %s", config.EnvS3AccessKey, config.EnvS3SecretKey)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultS3Endpoint
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = config.DefaultS3Region
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: config.Enabled(cfg.UseSSL, true),
		Region: region,
	})
	if err != nil {
		return nil, serrors.Configf("init s3 client: %v", err)
	}

	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		region: region,
		out:    out,
	}, nil
}

// Name implements Deployer.
func (s *S3) Name() string { return config.ProviderS3 }

// Upload implements Deployer. The bucket is created when it does not exist.
func (s *S3) Upload(ctx context.Context, b *Bundle) (*Result, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, serrors.Transform("deploy", "s3", fmt.Errorf("ensure bucket %s: %w", s.bucket, err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s3UploadWorkers)
	for _, e := range b.Entries {
		g.Go(func() error {
			return s.put(gctx, b, e)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	target := "s3://" + s.bucket
	if s.prefix != "" {
		target += "/" + s.prefix
	}
	s.out.Debug("deploy: uploaded %d file(s) to %s", len(b.Entries), target)
	return &Result{Target: target, Files: len(b.Entries), Bytes: b.Size()}, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
}

func (s *S3) put(ctx context.Context, b *Bundle, e Entry) error {
	f, err := os.Open(b.Path(e))
	if err != nil {
		return serrors.Filesystem(b.Path(e), err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, s.bucket, ObjectKey(s.prefix, e.Rel), f, e.Size, minio.PutObjectOptions{
		ContentType:  contentType(e.Rel),
		UserMetadata: map[string]string{"Sitepipe-Run": b.RunID},
	})
	if err != nil {
		return serrors.Transform("deploy", "s3", fmt.Errorf("upload %s: %w", e.Rel, err))
	}
	return nil
}

// ObjectKey joins an optional prefix and a bundle-relative path.
func ObjectKey(prefix, rel string) string {
	rel = strings.TrimLeft(rel, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

func contentType(rel string) string {
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
