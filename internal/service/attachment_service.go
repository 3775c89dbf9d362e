package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/pkg/logger"
	"github.com/linguaschool/chat-backend/pkg/storage"
)

// FileStore accepts an upload and returns a stable reference
type FileStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string, size int64) (*storage.UploadResult, error)
}

// AttachmentService uploads files that messages later reference by URL
type AttachmentService struct {
	store         FileStore
	conversations repository.ConversationRepository
	maxBytes      int64
}

// NewAttachmentService creates a new AttachmentService. A nil store makes every upload fail as unavailable.
func NewAttachmentService(store FileStore, conversations repository.ConversationRepository, maxBytes int64) *AttachmentService {
	return &AttachmentService{store: store, conversations: conversations, maxBytes: maxBytes}
}

// Upload stores a file for a conversation the caller belongs to
func (s *AttachmentService) Upload(
	ctx context.Context,
	conversationID, userID uint64,
	fileName, contentType string,
	size int64,
	body io.Reader,
) (*domain.AttachmentResponse, error) {
	if _, err := activeMember(ctx, s.conversations, conversationID, userID); err != nil {
		return nil, err
	}

	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, common.Validationf("file name is required")
	}
	if size <= 0 {
		return nil, common.Validationf("file is empty")
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, common.Validationf("file exceeds %d bytes", s.maxBytes)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if s.store == nil {
		return nil, common.ErrStorageUnavailable
	}
	result, err := s.store.Upload(ctx, storage.GenerateKey(conversationID, fileName), body, contentType, size)
	if err != nil {
		logger.GetLogger().Error().Err(err).
			Uint64("conversation_id", conversationID).
			Str("file_name", fileName).
			Msg("attachment upload failed")
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	return &domain.AttachmentResponse{
		URL:      result.URL,
		FileName: fileName,
		FileSize: result.Size,
		FileType: result.ContentType,
	}, nil
}
