package mongodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

// BlobStore keeps uploaded message files addressed by their path.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, body io.Reader) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, *models.FileInfo, error)
}

type gridfsStore struct {
	db     *DB
	bucket string
}

func NewBlobStore(db *DB, conf *config.Config) BlobStore {
	return &gridfsStore{
		db:     db,
		bucket: conf.Storage.Bucket,
	}
}

type blobMetadata struct {
	ContentType string `bson:"content_type"`
}

// newBucket returns a bucket bound to the deadline of ctx. Buckets carry their
// deadlines as state, so one is built per call.
func (s *gridfsStore) newBucket(ctx context.Context) (*gridfs.Bucket, error) {
	bucket, err := gridfs.NewBucket(s.db.Database, options.GridFSBucket().SetName(s.bucket))
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", s.bucket, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Minute)
	}
	if err := bucket.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := bucket.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return bucket, nil
}

func (s *gridfsStore) Upload(ctx context.Context, path, contentType string, body io.Reader) (int64, error) {
	bucket, err := s.newBucket(ctx)
	if err != nil {
		return 0, err
	}

	counter := &countingReader{r: body}
	opts := options.GridFSUpload().SetMetadata(blobMetadata{ContentType: contentType})
	if _, err := bucket.UploadFromStream(path, counter, opts); err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}
	return counter.n, nil
}

func (s *gridfsStore) Open(ctx context.Context, path string) (io.ReadCloser, *models.FileInfo, error) {
	bucket, err := s.newBucket(ctx)
	if err != nil {
		return nil, nil, err
	}

	stream, err := bucket.OpenDownloadStreamByName(path)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, nil, models.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}

	file := stream.GetFile()
	info := &models.FileInfo{
		Path: path,
		Size: file.Length,
	}
	var meta blobMetadata
	if len(file.Metadata) > 0 && bson.Unmarshal(file.Metadata, &meta) == nil {
		info.ContentType = meta.ContentType
	}
	return stream, info, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
