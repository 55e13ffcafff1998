package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Scheme prefixes archive targets that live in a bucket.
const S3Scheme = "s3://"

var _ Provider = (*S3Provider)(nil)

type s3FileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *s3FileInfo) Name() string       { return f.name }
func (f *s3FileInfo) Size() int64        { return f.size }
func (f *s3FileInfo) IsDir() bool        { return f.isDir }
func (f *s3FileInfo) ModTime() time.Time { return f.modTime }

// S3Provider stores files as objects below a key prefix of one bucket.
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Provider creates a new S3Provider using the default AWS credential chain.
func NewS3Provider(ctx context.Context, bucket string, prefix string) (*S3Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// ParseS3URL splits s3://bucket/prefix into its parts. ok is false when
// target does not use the s3 scheme or names no bucket.
func ParseS3URL(target string) (bucket, prefix string, ok bool) {
	if !strings.HasPrefix(target, S3Scheme) {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(target, S3Scheme), "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, prefix, true
}

// Open returns an S3Provider for s3:// targets and a LocalProvider rooted at
// target otherwise.
func Open(ctx context.Context, target string) (Provider, error) {
	if bucket, prefix, ok := ParseS3URL(target); ok {
		return NewS3Provider(ctx, bucket, prefix)
	}
	if strings.HasPrefix(target, S3Scheme) {
		return nil, fmt.Errorf("invalid s3 target %q", target)
	}
	return NewLocalProvider(target), nil
}

// buildKey constructs the full S3 key based on the provider's prefix
func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		info := &s3FileInfo{
			name:  path.Base(key),
			isDir: strings.HasSuffix(key, "/"),
		}
		if head.LastModified != nil {
			info.modTime = *head.LastModified
		}
		if head.ContentLength != nil {
			info.size = *head.ContentLength
		}
		return info, nil
	}

	// No object under the exact key; a non-empty prefix counts as a directory.
	dirPrefix := ""
	if key != "" {
		dirPrefix = key + "/"
	}
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}
	if len(out.Contents) > 0 || len(out.CommonPrefixes) > 0 {
		return &s3FileInfo{name: path.Base(key), isDir: true}, nil
	}
	return nil, fmt.Errorf("file not found: %s", pth)
}

// List returns the objects and common prefixes directly below pth. A prefix
// with no objects lists as empty.
func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.buildKey(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(dirPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirPrefix), "/")
			infos = append(infos, &s3FileInfo{name: name, isDir: true})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" { // the prefix placeholder itself
				continue
			}
			info := &s3FileInfo{
				name:  strings.TrimSuffix(name, "/"),
				isDir: strings.HasSuffix(name, "/"),
				size:  aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.modTime = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// MkdirAll is a no-op: object keys need no parent directories.
func (p *S3Provider) MkdirAll(ctx context.Context, pth string) error {
	return ctx.Err()
}

func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite streams the written bytes into a multipart upload. The upload
// completes, and its error surfaces, on Close.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string, metadata FileInfo) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	errChan := make(chan error, 1)

	go func() {
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(p.buildKey(pth)),
			Body:   pr,
		})
		pr.CloseWithError(err)
		errChan <- err
	}()

	return &asyncS3Writer{pw: pw, errChan: errChan}, nil
}

func (p *S3Provider) Remove(ctx context.Context, pth string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", pth, err)
	}
	return nil
}

type asyncS3Writer struct {
	pw      *io.PipeWriter
	errChan <-chan error
}

func (w *asyncS3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *asyncS3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.errChan; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
