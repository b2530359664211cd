package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

const filesRoute = "/files/"

// UploadFile stores a file under messages/{channel}/ and returns the
// descriptor to attach to a message.
func (u *messaging) UploadFile(ctx context.Context, channelID string, file models.FileUpload) (uploaded *models.UploadedFile, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "upload_file", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return nil, err
	}
	if file.Body == nil {
		return nil, models.Fail("", models.ReasonInvalidArgument, "file body is required")
	}
	if _, err := u.requireMember(ctx, id, me); err != nil {
		return nil, err
	}

	maxBytes := u.conf.Storage.MaxUploadBytes
	data, err := io.ReadAll(io.LimitReader(file.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, models.Fail("", models.ReasonInvalidArgument, "file is empty")
	case int64(len(data)) > maxBytes:
		return nil, models.Fail("", models.ReasonInvalidArgument, "file exceeds %d bytes", maxBytes)
	}

	detected := mimetype.Detect(data)
	contentType := file.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}
	ext := strings.TrimPrefix(path.Ext(file.Name), ".")
	if ext == "" {
		ext = strings.TrimPrefix(detected.Extension(), ".")
	}

	name := fmt.Sprintf("%d-%s", u.now().UnixMilli(), uuid.NewString())
	if ext != "" {
		name += "." + ext
	}
	blobPath := path.Join("messages", id.Hex(), name)

	size, err := u.blobs.Upload(ctx, blobPath, contentType, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	fileName := file.Name
	if fileName == "" {
		fileName = name
	}
	return &models.UploadedFile{
		FileURL:  strings.TrimRight(u.conf.Storage.PublicBaseURL, "/") + filesRoute + blobPath,
		FileName: fileName,
		FileSize: size,
		FileType: ext,
		MimeType: contentType,
	}, nil
}

// OpenFile streams a stored blob. The caller closes the reader.
func (u *messaging) OpenFile(ctx context.Context, blobPath string) (body io.ReadCloser, info *models.FileInfo, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "open_file", start, err) }(time.Now())

	cleaned := strings.TrimPrefix(path.Clean("/"+blobPath), "/")
	if !strings.HasPrefix(cleaned, "messages/") {
		return nil, nil, models.Fail("", models.ReasonNotFound, "file %s not found", blobPath)
	}
	return u.blobs.Open(ctx, cleaned)
}
