package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client the loader needs
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Config configures the S3 document source
type S3Config struct {
	Bucket    string
	Prefix    string // Defaults to "extracted"
	Region    string
	Endpoint  string // For S3-compatible stores
	AccessKey string
	SecretKey string
}

// S3ConfigFromModel maps the source config
func S3ConfigFromModel(cfg model.SourceConfig) S3Config {
	return S3Config{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	}
}

// S3Loader reads extractor output from <prefix>/<year>/<source>/document.json objects
type S3Loader struct {
	client S3API
	bucket string
	prefix string
	log    *zap.Logger
}

// NewS3Loader builds an S3 client from cfg
func NewS3Loader(ctx context.Context, cfg S3Config, log *zap.Logger) (*S3Loader, error) {
	if cfg.Bucket == "" {
		return nil, &model.ConfigurationError{Field: "source.bucket", Reason: "required for the s3 source"}
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3LoaderWithClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3LoaderWithClient wraps an existing client
func NewS3LoaderWithClient(client S3API, bucket, prefix string, log *zap.Logger) *S3Loader {
	if prefix == "" {
		prefix = "extracted"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &S3Loader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

func (l *S3Loader) key(id string) string {
	id = strings.Trim(id, "/")
	if strings.HasSuffix(id, ".json") {
		return path.Join(l.prefix, id)
	}
	return path.Join(l.prefix, id, DocumentFile)
}

// Load downloads and decodes one document. id is "<year>/<source>".
func (l *S3Loader) Load(ctx context.Context, id string) (*model.Document, error) {
	key := l.key(id)
	result, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", l.bucket, key, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", l.bucket, key, err)
	}
	return DecodeDocument(id, data)
}

// List returns the IDs of every document object under the prefix, sorted
func (l *S3Loader) List(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix + "/"),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", l.bucket, l.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Base(key) != DocumentFile {
				continue
			}
			id := strings.TrimPrefix(path.Dir(key), l.prefix+"/")
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	l.log.Debug("listed documents", zap.String("bucket", l.bucket), zap.String("prefix", l.prefix), zap.Int("count", len(ids)))
	return ids, nil
}

const httpTimeout = 60 * time.Second

// NewLoader builds the loader selected by cfg
func NewLoader(ctx context.Context, cfg model.SourceConfig, log *zap.Logger) (Loader, error) {
	switch cfg.Kind {
	case "", "disk":
		if cfg.Dir == "" {
			return nil, &model.ConfigurationError{Field: "source.dir", Reason: "required for the disk source"}
		}
		return NewDiskLoader(cfg.Dir, log), nil
	case "s3":
		return NewS3Loader(ctx, S3ConfigFromModel(cfg), log)
	case "http":
		if cfg.URL == "" {
			return nil, &model.ConfigurationError{Field: "source.url", Reason: "required for the http source"}
		}
		return NewHTTPLoader(cfg.URL, httpTimeout, 0, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy, log), nil
	default:
		return nil, &model.ConfigurationError{Field: "source.kind", Reason: fmt.Sprintf("unknown source %q", cfg.Kind)}
	}
}
