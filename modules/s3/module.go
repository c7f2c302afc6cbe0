// Package s3 provides S3Upload, a task node that uploads a file produced by
// upstream tasks to an S3 compatible object store. Uploads of one node run
// frame by frame in a single batch.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// DefaultRegion is used when the region plug is empty.
const DefaultRegion = "us-east-1"

// Config holds the connection settings of one upload, after substitution.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// ObjectStore is the subset of *minio.Client used by S3Upload.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Module implements the registry.Module interface for this package.
// NewClient is nil in production, which connects with minio.
type Module struct {
	NewClient func(cfg Config) (ObjectStore, error)
}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	u := &Upload{newClient: m.NewClient}
	if u.newClient == nil {
		u.newClient = NewMinioClient
	}
	r.RegisterNodeType(&registry.NodeType{
		Name:        "S3Upload",
		Description: "Uploads a file to an S3 bucket for every frame.",
		New: func(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
			return New(ctx, g, name, u)
		},
	})
}

// NewMinioClient connects to cfg.Endpoint with static credentials.
func NewMinioClient(cfg Config) (ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return client, nil
}

// Upload is the S3Upload behaviour.
type Upload struct {
	newClient func(cfg Config) (ObjectStore, error)
}

func (*Upload) TypeName() string { return "S3Upload" }

// RequiresSequenceExecution is always true: uploads share one client per
// batch and are issued in frame order.
func (*Upload) RequiresSequenceExecution(*graph.Node) bool { return true }

// ExecutionHash identifies the object being written. Credentials are left
// out so rotating them does not make an upload look like new work.
func (*Upload) ExecutionHash(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (hashing.Hash, error) {
	obj, err := objectOf(ctx, n, c, ev)
	if err != nil || obj.fileName == "" {
		return hashing.Zero, err
	}
	cfg, err := configOf(ctx, n, c, ev)
	if err != nil {
		return hashing.Zero, err
	}
	return hashing.New().
		String(n.TypeName()).
		String(cfg.Endpoint).
		String(cfg.Region).
		String(obj.bucket).
		String(obj.key).
		String(obj.fileName).
		Sum(), nil
}

func (*Upload) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (u *Upload) Execute(ctx context.Context, n *graph.Node, contexts []*execctx.Context, ev task.Evaluator) error {
	if len(contexts) == 0 {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("node", n.FullName())

	cfg, err := configOf(ctx, n, contexts[0], ev)
	if err != nil {
		return err
	}
	client, err := u.newClient(cfg)
	if err != nil {
		return err
	}
	createBucket, err := task.BoolValue(ctx, ev, n, "createBucket", contexts[0])
	if err != nil {
		return err
	}

	ensured := make(map[string]bool)
	for _, c := range contexts {
		obj, err := objectOf(ctx, n, c, ev)
		if err != nil {
			return err
		}
		if obj.fileName == "" {
			continue
		}
		if obj.bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if createBucket && !ensured[obj.bucket] {
			if err := ensureBucket(ctx, client, obj.bucket, cfg.Region); err != nil {
				return fmt.Errorf("ensure bucket: %w", err)
			}
			ensured[obj.bucket] = true
		}
		if err := upload(ctx, logger, client, obj); err != nil {
			return err
		}
	}
	return nil
}

type object struct {
	bucket   string
	key      string
	fileName string
}

func objectOf(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (object, error) {
	var obj object
	for _, f := range []struct {
		plug string
		dst  *string
	}{
		{"bucket", &obj.bucket},
		{"key", &obj.key},
		{"fileName", &obj.fileName},
	} {
		s, err := task.StringValue(ctx, ev, n, f.plug, c)
		if err != nil {
			return object{}, err
		}
		*f.dst = strings.TrimSpace(c.Substitute(s))
	}
	if obj.key == "" {
		obj.key = filepath.Base(obj.fileName)
	}
	obj.key = strings.TrimLeft(obj.key, "/")
	return obj, nil
}

func configOf(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (Config, error) {
	var cfg Config
	for _, f := range []struct {
		plug string
		dst  *string
	}{
		{"endpoint", &cfg.Endpoint},
		{"region", &cfg.Region},
		{"accessKey", &cfg.AccessKey},
		{"secretKey", &cfg.SecretKey},
	} {
		s, err := task.StringValue(ctx, ev, n, f.plug, c)
		if err != nil {
			return Config{}, err
		}
		*f.dst = strings.TrimSpace(c.Substitute(s))
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	secure, err := task.BoolValue(ctx, ev, n, "secure", c)
	if err != nil {
		return Config{}, err
	}
	cfg.Secure = secure
	return cfg, nil
}

func ensureBucket(ctx context.Context, client ObjectStore, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil || exists {
		return err
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func upload(ctx context.Context, logger *slog.Logger, client ObjectStore, obj object) error {
	file, err := os.Open(obj.fileName)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", obj.fileName, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", obj.fileName, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(obj.fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	logger.Info("Uploading file to S3", "source", obj.fileName, "bucket", obj.bucket, "key", obj.key, "size", stat.Size(), "contentType", contentType)
	info, err := client.PutObject(ctx, obj.bucket, obj.key, file, stat.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload '%s' to s3://%s/%s: %w", obj.fileName, obj.bucket, obj.key, err)
	}
	logger.Info("Successfully uploaded file", "etag", info.ETag)
	return nil
}

// New builds an S3Upload node using u.
func New(ctx context.Context, g *graph.Graph, name string, u *Upload) (*graph.Node, error) {
	n := g.NewNode(name, u)
	if err := task.AddTaskPlugs(ctx, n); err != nil {
		return nil, err
	}
	for _, p := range []*graph.Plug{
		g.NewPlug("endpoint", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("region", graph.In, cty.String, cty.StringVal(DefaultRegion), graph.Default),
		g.NewPlug("bucket", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("accessKey", graph.In, cty.String, cty.StringVal("${AWS_ACCESS_KEY_ID}"), graph.Default),
		g.NewPlug("secretKey", graph.In, cty.String, cty.StringVal("${AWS_SECRET_ACCESS_KEY}"), graph.Default),
		g.NewPlug("secure", graph.In, cty.Bool, cty.True, graph.Default),
		g.NewPlug("fileName", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("key", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("createBucket", graph.In, cty.Bool, cty.False, graph.Default),
	} {
		if err := n.AddPlug(ctx, p); err != nil {
			return nil, err
		}
	}
	return n, nil
}
