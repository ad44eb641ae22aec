package contents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/contentgate/internal/log"
	"github.com/keithlinneman/contentgate/internal/pathutil"
	"github.com/keithlinneman/contentgate/internal/xerrors"
)

// maxObjectSize caps a single Get so a misplaced large object can't blow up
// memory. Matches what the editor surface can reasonably handle anyway.
const maxObjectSize int64 = 50 * 1024 * 1024 // 50MB

// S3API is the subset of the S3 client used by the backend.
// Narrow on purpose so tests can fake it.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Presigner produces presigned GET URLs. *s3.PresignClient satisfies it.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Options struct {
	Logger log.Logger

	// Bucket and Prefix locate content: s3://{bucket}/{prefix}/{path}
	Bucket string
	Prefix string

	Client    S3API
	Presigner S3Presigner

	// PresignTTL bounds how long a download URL stays valid. Default 15m.
	PresignTTL time.Duration
}

// S3Manager serves content from an S3 bucket. It implements Manager and the
// current DownloadURLer capability; the legacy FileURL variant is
// intentionally not implemented (there is no server-relative raw path for
// bucket objects).
type S3Manager struct {
	opts   S3Options
	logger log.Logger
}

func NewS3(opts S3Options) (*S3Manager, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("contents: Bucket is required")
	}
	if opts.Client == nil {
		return nil, xerrors.New("contents: Client is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	return &S3Manager{opts: opts, logger: opts.Logger}, nil
}

func (m *S3Manager) key(p string) (string, error) {
	if pathutil.HasDotSegments(p) {
		return "", xerrors.Wrapf(ErrInvalidPath, "%q", p)
	}
	rel := strings.Trim(path.Clean("/"+p), "/")
	if m.opts.Prefix != "" {
		return strings.Trim(m.opts.Prefix, "/") + "/" + rel, nil
	}
	return rel, nil
}

// rel strips the configured prefix from an object key.
func (m *S3Manager) rel(key string) string {
	if m.opts.Prefix != "" {
		key = strings.TrimPrefix(key, strings.Trim(m.opts.Prefix, "/")+"/")
	}
	return strings.Trim(key, "/")
}

func (m *S3Manager) List(ctx context.Context, dir string) ([]Entry, error) {
	key, err := m.key(dir)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}

	var out []Entry
	var token *string
	for {
		res, err := m.opts.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(m.opts.Bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, xerrors.Wrapf(err, "contents: list s3://%s/%s", m.opts.Bucket, prefix)
		}
		for _, cp := range res.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			rel := m.rel(*cp.Prefix)
			out = append(out, Entry{
				Name: path.Base(rel),
				Path: rel,
				Dir:  true,
			})
		}
		for _, obj := range res.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			rel := m.rel(*obj.Key)
			e := Entry{
				Name:     path.Base(rel),
				Path:     rel,
				Size:     aws.ToInt64(obj.Size),
				Mimetype: mimeByName(rel),
			}
			if obj.LastModified != nil {
				e.ModTime = obj.LastModified.UTC()
			}
			out = append(out, e)
		}
		if !aws.ToBool(res.IsTruncated) {
			break
		}
		token = res.NextContinuationToken
	}
	return out, nil
}

func (m *S3Manager) Get(ctx context.Context, p string) (*Item, error) {
	key, err := m.key(p)
	if err != nil {
		return nil, err
	}
	res, err := m.opts.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, xerrors.Wrapf(ErrNotFound, "%q", p)
		}
		return nil, xerrors.Wrapf(err, "contents: get s3://%s/%s", m.opts.Bucket, key)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxObjectSize+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "contents: read s3://%s/%s", m.opts.Bucket, key)
	}
	if int64(len(data)) > maxObjectSize {
		return nil, xerrors.Newf("contents: object %q exceeds max size (%d bytes)", p, maxObjectSize)
	}

	rel := m.rel(key)
	item := &Item{
		Name:     path.Base(rel),
		Path:     rel,
		Size:     int64(len(data)),
		Mimetype: mimeByName(rel),
		Content:  data,
	}
	if res.LastModified != nil {
		item.ModTime = res.LastModified.UTC()
	}
	return item, nil
}

func (m *S3Manager) Save(ctx context.Context, p string, data []byte) (*Item, error) {
	key, err := m.key(p)
	if err != nil {
		return nil, err
	}
	_, err = m.opts.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeByName(key)),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "contents: put s3://%s/%s", m.opts.Bucket, key)
	}
	rel := m.rel(key)
	return &Item{
		Name:     path.Base(rel),
		Path:     rel,
		Size:     int64(len(data)),
		ModTime:  time.Now().UTC(),
		Mimetype: mimeByName(rel),
	}, nil
}

func (m *S3Manager) Delete(ctx context.Context, p string) error {
	key, err := m.key(p)
	if err != nil {
		return err
	}
	_, err = m.opts.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return xerrors.Wrapf(err, "contents: delete s3://%s/%s", m.opts.Bucket, key)
	}
	return nil
}

// DownloadURL returns a presigned GET URL for the object.
func (m *S3Manager) DownloadURL(ctx context.Context, p string) (string, error) {
	if m.opts.Presigner == nil {
		return "", xerrors.Wrapf(ErrNotSupported, "no presigner configured")
	}
	key, err := m.key(p)
	if err != nil {
		return "", err
	}
	req, err := m.opts.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = m.opts.PresignTTL
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "contents: presign s3://%s/%s", m.opts.Bucket, key)
	}
	return req.URL, nil
}
