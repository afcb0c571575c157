package services

import (
	"context"
	"time"

	"github.com/chatwire/sh-msg-platform/internal/blobstore"
	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/log"
)

// MediaStore scopes a blob store to one session and maps message media onto
// object names of the form "<messageId><extension>".
type MediaStore struct {
	sessionID string
	blob      ports.BlobStore
	urlExpiry time.Duration
}

// NewMediaStore builds the media adapter for one session. urlExpiry bounds
// the validity window of issued signed urls.
func NewMediaStore(sessionID string, blob ports.BlobStore, urlExpiry time.Duration) *MediaStore {
	return &MediaStore{
		sessionID: sessionID,
		blob:      blob,
		urlExpiry: blobstore.ExpiryFor(urlExpiry),
	}
}

// UploadMedia stores the media bytes, overwriting any previous object with
// the same message id, and issues a signed read url. Url issuance failing
// after a successful upload still reports success: the object is stored and
// a url can be requested again.
func (m *MediaStore) UploadMedia(ctx context.Context, messageID string, data []byte, mimeType string) domain.MediaUploadResult {
	objectName := messageID + blobstore.ExtensionForMIME(mimeType)
	path, err := m.blob.Upload(ctx, m.sessionID, objectName, data, mimeType)
	if err != nil {
		log.Error(ctx, "media upload failed",
			"session", m.sessionID, "message", messageID, "err", err)
		return domain.MediaUploadResult{Success: false, Message: "media upload failed"}
	}
	url, err := m.blob.PresignedURL(ctx, m.sessionID, objectName, m.urlExpiry)
	if err != nil {
		log.Warn(ctx, "media stored but signed url issuance failed",
			"session", m.sessionID, "message", messageID, "err", err)
		url = ""
	}
	return domain.MediaUploadResult{
		Success: true,
		Message: "media uploaded",
		Path:    path,
		URL:     url,
	}
}

// MediaURL issues a fresh signed url for a stored media object
func (m *MediaStore) MediaURL(ctx context.Context, messageID, extension string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl = m.urlExpiry
	}
	url, err := m.blob.PresignedURL(ctx, m.sessionID, messageID+extension, ttl)
	if err != nil {
		log.Warn(ctx, "signed url issuance failed",
			"session", m.sessionID, "message", messageID, "err", err)
		return "", false
	}
	return url, true
}

// DownloadMedia returns the raw bytes of a stored media object
func (m *MediaStore) DownloadMedia(ctx context.Context, messageID, extension string) ([]byte, bool) {
	data, err := m.blob.Download(ctx, m.sessionID, messageID+extension)
	if err != nil {
		log.Warn(ctx, "media download failed",
			"session", m.sessionID, "message", messageID, "err", err)
		return nil, false
	}
	return data, true
}

// DeleteMedia removes one media object, best effort
func (m *MediaStore) DeleteMedia(ctx context.Context, messageID, extension string) {
	if err := m.blob.Delete(ctx, m.sessionID, messageID+extension); err != nil {
		log.Warn(ctx, "media delete failed",
			"session", m.sessionID, "message", messageID, "err", err)
	}
}

// DeleteAllMedia removes every media object of the session, best effort
func (m *MediaStore) DeleteAllMedia(ctx context.Context) {
	if err := m.blob.DeleteAll(ctx, m.sessionID); err != nil {
		log.Warn(ctx, "media bulk delete failed",
			"session", m.sessionID, "err", err)
	}
}
