// Package s3 implements the backend for Amazon S3 and S3-compatible stores.
// Keys are contract paths without the leading slash; directories are common
// prefixes, with an optional zero-byte marker object for explicitly created
// ones.
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// Config describes one bucket.
type Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
}

// Backend serves the contract from one S3 bucket.
type Backend struct {
	accessor.Unimplemented

	name    string
	config  Config
	client  *awss3.Client
	presign *awss3.PresignClient
}

// New builds a backend from the ambient AWS configuration plus overrides.
func New(ctx context.Context, name string, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.KindInvalidInput, "s3 backend requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New(errors.KindOther, "loading aws configuration").WithCause(err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(name, cfg, client), nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(name string, cfg Config, client *awss3.Client) *Backend {
	if name == "" {
		name = "s3"
	}
	return &Backend{
		name:    name,
		config:  cfg,
		client:  client,
		presign: awss3.NewPresignClient(client),
	}
}

// Info implements accessor.Accessor.
func (b *Backend) Info() accessor.About {
	return accessor.About{
		Scheme: "s3",
		Name:   b.name,
		Root:   "s3://" + b.config.Bucket,
		Capabilities: accessor.CapCreate | accessor.CapRead | accessor.CapWrite |
			accessor.CapStat | accessor.CapDelete | accessor.CapList |
			accessor.CapCopy | accessor.CapPresign,
	}
}

// key maps a contract path onto an object key.
func key(path string) string { return strings.TrimPrefix(path, "/") }

// translate maps service errors onto the taxonomy at the origin.
func translate(err error, path string) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return errors.Errorf(errors.KindNotFound, "%s does not exist", path).WithCause(err)
		case "AccessDenied":
			return errors.Errorf(errors.KindPermissionDenied, "access to %s denied", path).WithCause(err)
		case "InvalidRange":
			return errors.Errorf(errors.KindRangeNotSatisfiable, "requested range for %s not satisfiable", path).WithCause(err)
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
			"InternalError", "ServiceUnavailable":
			return errors.Errorf(errors.KindRetryable, "transient s3 failure for %s", path).WithCause(err)
		}
	}
	return errors.New(errors.KindOther, "s3 request failed").WithPath(path).WithCause(err)
}

func (b *Backend) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	// Both file and directory creation are an empty put; the trailing
	// slash on the key is what makes a directory marker.
	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key(path)),
		Body:   bytes.NewReader(nil),
	})
	return translate(err, path)
}

func (b *Backend) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	input := &awss3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key(path)),
	}
	if rng := args.Range.String(); rng != "" {
		input.Range = aws.String(rng)
	}

	out, err := b.client.GetObject(ctx, input)
	if err == nil {
		return out.Body, nil
	}

	terr := translate(err, path)
	if !errors.Is(terr, errors.KindRangeNotSatisfiable) {
		return nil, terr
	}
	// S3 rejects offset == size with InvalidRange, but the contract wants
	// an empty read there and a failure only past the end.
	md, statErr := b.Stat(ctx, path, accessor.OpStat{})
	if statErr != nil {
		return nil, terr
	}
	if size, ok := md.ContentLength(); ok && args.Range.Offset == size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return nil, terr
}

func (b *Backend) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	if args.Append {
		return nil, errors.New(errors.KindUnsupported, "s3 objects cannot be appended to")
	}

	// PutObject needs a seekable body for signing; buffer the stream.
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.New(errors.KindOther, "reading write body").WithCause(err)
	}

	input := &awss3.PutObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key(path)),
		Body:   bytes.NewReader(data),
	}
	if args.ContentType != "" {
		input.ContentType = aws.String(args.ContentType)
	}

	out, err := b.client.PutObject(ctx, input)
	if err != nil {
		return nil, translate(err, path)
	}

	md := accessor.NewMetadata(accessor.ModeFile).WithContentLength(int64(len(data)))
	if args.ContentType != "" {
		md = md.WithContentType(args.ContentType)
	}
	if out.ETag != nil {
		md = md.WithETag(strings.Trim(*out.ETag, `"`))
	}
	return md, nil
}

func (b *Backend) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	if strings.HasSuffix(path, "/") || path == "/" {
		return b.statDir(ctx, path)
	}

	out, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		terr := translate(err, path)
		if errors.Is(terr, errors.KindNotFound) {
			// The path may still name a directory prefix.
			if md, dirErr := b.statDir(ctx, path+"/"); dirErr == nil {
				return md, nil
			}
		}
		return nil, terr
	}

	md := accessor.NewMetadata(accessor.ModeFile)
	if out.ContentLength != nil {
		md = md.WithContentLength(*out.ContentLength)
	}
	if out.LastModified != nil {
		md = md.WithLastModified(*out.LastModified)
	}
	if out.ETag != nil {
		md = md.WithETag(strings.Trim(*out.ETag, `"`))
	}
	if out.ContentType != nil {
		md = md.WithContentType(*out.ContentType)
	}
	return md, nil
}

func (b *Backend) statDir(ctx context.Context, path string) (*accessor.Metadata, error) {
	if path == "/" {
		return accessor.NewMetadata(accessor.ModeDir), nil
	}
	out, err := b.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(b.config.Bucket),
		Prefix:  aws.String(key(path)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, translate(err, path)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return nil, errors.Errorf(errors.KindNotFound, "%s does not exist", path)
	}
	return accessor.NewMetadata(accessor.ModeDir), nil
}

func (b *Backend) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	// S3 deletes are idempotent; the contract wants NotFound for a
	// missing target, so probe first.
	if !strings.HasSuffix(path, "/") {
		if _, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(b.config.Bucket),
			Key:    aws.String(key(path)),
		}); err != nil {
			return translate(err, path)
		}
	}
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key(path)),
	})
	return translate(err, path)
}

func (b *Backend) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	if args.Limit < 0 {
		return nil, errors.Errorf(errors.KindInvalidInput, "list limit %d must not be negative", args.Limit)
	}

	dir := path
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(b.config.Bucket),
		Prefix: aws.String(key(dir)),
	}
	if args.Delimiter != "" {
		input.Delimiter = aws.String(args.Delimiter)
	}
	if args.Limit > 0 {
		input.MaxKeys = aws.Int32(int32(args.Limit))
	}
	if args.Cursor != "" {
		input.ContinuationToken = aws.String(args.Cursor)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, translate(err, path)
	}

	var entries []accessor.Entry
	for _, obj := range out.Contents {
		p := "/" + aws.ToString(obj.Key)
		if p == dir {
			continue // the directory marker itself
		}
		md := accessor.NewMetadata(accessor.ModeFile)
		if strings.HasSuffix(p, "/") {
			md = accessor.NewMetadata(accessor.ModeDir)
		} else if obj.Size != nil {
			md = md.WithContentLength(*obj.Size)
		}
		if obj.LastModified != nil {
			md = md.WithLastModified(*obj.LastModified)
		}
		if obj.ETag != nil {
			md = md.WithETag(strings.Trim(*obj.ETag, `"`))
		}
		entries = append(entries, accessor.Entry{Path: p, Metadata: md})
	}
	for _, prefix := range out.CommonPrefixes {
		entries = append(entries, accessor.Entry{
			Path:     "/" + aws.ToString(prefix.Prefix),
			Metadata: accessor.NewMetadata(accessor.ModeDir),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	page := &accessor.ListPage{Entries: entries}
	if aws.ToBool(out.IsTruncated) {
		page.Cursor = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func (b *Backend) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	_, err := b.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(b.config.Bucket),
		Key:        aws.String(key(dst)),
		CopySource: aws.String(b.config.Bucket + "/" + key(src)),
	})
	return translate(err, src)
}

func (b *Backend) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	expires := func(o *awss3.PresignOptions) { o.Expires = args.Expiry }

	var (
		url    string
		method string
		header http.Header
	)
	switch args.Operation {
	case accessor.OperationRead:
		req, err := b.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(b.config.Bucket),
			Key:    aws.String(key(path)),
		}, expires)
		if err != nil {
			return nil, translate(err, path)
		}
		url, method, header = req.URL, req.Method, req.SignedHeader
	case accessor.OperationWrite:
		req, err := b.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
			Bucket: aws.String(b.config.Bucket),
			Key:    aws.String(key(path)),
		}, expires)
		if err != nil {
			return nil, translate(err, path)
		}
		url, method, header = req.URL, req.Method, req.SignedHeader
	case accessor.OperationStat:
		req, err := b.presign.PresignHeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(b.config.Bucket),
			Key:    aws.String(key(path)),
		}, expires)
		if err != nil {
			return nil, translate(err, path)
		}
		url, method, header = req.URL, req.Method, req.SignedHeader
	default:
		return nil, errors.Errorf(errors.KindInvalidInput,
			"operation %s cannot be presigned", args.Operation)
	}

	return &accessor.PresignedRequest{
		Method: method,
		URL:    url,
		Header: header,
		Expiry: time.Now().Add(args.Expiry),
	}, nil
}
