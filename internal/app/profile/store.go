package profile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"globalchat/internal/app/storage"
	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/randx"
)

// Store is the profile table accessor.
type Store struct {
	tables  backend.Tables
	storage storage.StorageService
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithStorage enables avatar uploads through svc.
func WithStorage(svc storage.StorageService) Option {
	return func(s *Store) { s.storage = svc }
}

// NewStore creates a profile store on tables.
func NewStore(tables backend.Tables, opts ...Option) *Store {
	s := &Store{
		tables: tables,
		logger: logx.Component("profile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchByID returns the profile with id. A missing row is an errs.ErrNotFound error,
// any other failure an errs.ErrStore error.
func (s *Store) FetchByID(ctx context.Context, id string) (Profile, error) {
	row, err := s.tables.SelectOne(ctx, Table, backend.Eq(ColID, id))
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			s.logger.Warn().Str("user_id", id).Msg("Profile not found")
			notFound := errs.NewError(errs.ErrNotFound, "profile")
			notFound.Err = err
			return Profile{}, notFound
		}

		s.logger.Error().Err(err).Str("user_id", id).Msg("Error fetching profile")
		return Profile{}, storeError(err)
	}

	p, err := FromRow(row)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("Error decoding profile")
		return Profile{}, errs.Wrap(errs.ErrStore, err)
	}
	return p, nil
}

// Create inserts p. A duplicate id or any backend failure is an errs.ErrStore error.
func (s *Store) Create(ctx context.Context, p Profile) error {
	if err := s.tables.Insert(ctx, Table, p.Row()); err != nil {
		s.logger.Error().Err(err).Str("user_id", p.ID).Msg("Error creating profile")
		return storeError(err)
	}
	return nil
}

// Update patches the profile with id. It does not check that the row exists.
func (s *Store) Update(ctx context.Context, id string, u Update) error {
	if u.Empty() {
		return nil
	}

	var previousAvatar string
	if u.AvatarKey != nil {
		if *u.AvatarKey != "" {
			if err := s.verifyAvatar(ctx, id, *u.AvatarKey); err != nil {
				return err
			}
		}
		previousAvatar = s.currentAvatar(ctx, id)
	}

	if err := s.tables.Update(ctx, Table, backend.Eq(ColID, id), u.Row()); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("Error updating profile")
		return storeError(err)
	}

	if previousAvatar != "" && previousAvatar != *u.AvatarKey {
		s.deleteAvatar(ctx, id, previousAvatar)
	}
	return nil
}

// currentAvatar returns the stored avatar key, or "" when storage is disabled or the
// row cannot be read.
func (s *Store) currentAvatar(ctx context.Context, id string) string {
	if s.storage == nil {
		return ""
	}
	row, err := s.tables.SelectOne(ctx, Table, backend.Eq(ColID, id))
	if err != nil {
		return ""
	}
	key, _ := stringColumn(row, ColAvatarKey)
	return key
}

// deleteAvatar removes a replaced avatar object. Failures only leave an orphan behind.
func (s *Store) deleteAvatar(ctx context.Context, id, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("user_id", id).Str("key", key).Msg("Error deleting replaced avatar")
		return
	}
	s.logger.Debug().Str("user_id", id).Str("key", key).Msg("Replaced avatar deleted")
}

// verifyAvatar rejects keys that were not issued to id and, with storage configured,
// objects that were never uploaded or do not satisfy the avatar limits.
func (s *Store) verifyAvatar(ctx context.Context, id, key string) error {
	if !randx.IsAvatarKeyOf(key, id) {
		s.logger.Warn().Str("user_id", id).Str("key", key).Msg("Avatar key not issued to this user")
		return errs.NewError(errs.ErrInvalidParams)
	}
	if s.storage == nil {
		return nil
	}

	info, err := s.storage.Stat(ctx, key)
	if err != nil {
		return err
	}
	if customErr := storage.ValidateFileSize(info.Size); customErr != nil {
		return customErr
	}
	if _, ok := storage.AllowedMIMETypes[info.ContentType]; !ok {
		return errs.NewError(errs.ErrFileTypeInvalid, info.ContentType)
	}
	return nil
}

func storeError(err error) error {
	if errs.Is(err, errs.ErrStore) {
		return err
	}
	return errs.Wrap(errs.ErrStore, err)
}

// AvatarUpload is a presigned upload target for a new avatar.
type AvatarUpload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PresignAvatarUpload validates the file and returns a fresh key with a URL to PUT it to.
// Save the key with Update once the upload finished.
func (s *Store) PresignAvatarUpload(ctx context.Context, userID, fileName, mimeType string, size int64) (AvatarUpload, error) {
	if s.storage == nil {
		return AvatarUpload{}, errs.NewError(errs.ErrStorageDisabled)
	}
	if err := validateAvatar(fileName, mimeType, size); err != nil {
		return AvatarUpload{}, err
	}

	key := randx.AvatarKey(userID, fileName)

	url, err := s.storage.PresignUpload(ctx, key, mimeType, size, storage.UploadURLDuration)
	if err != nil {
		return AvatarUpload{}, errs.Wrap(errs.ErrStore, err)
	}

	return AvatarUpload{Key: key, URL: url, ExpiresAt: time.Now().Add(storage.UploadURLDuration)}, nil
}

// UploadAvatar stores body under a fresh key and returns the key.
func (s *Store) UploadAvatar(ctx context.Context, userID, fileName, mimeType string, size int64, body io.Reader) (string, error) {
	if s.storage == nil {
		return "", errs.NewError(errs.ErrStorageDisabled)
	}
	if err := validateAvatar(fileName, mimeType, size); err != nil {
		return "", err
	}

	key := randx.AvatarKey(userID, fileName)
	if err := s.storage.Upload(ctx, key, mimeType, io.LimitReader(body, size)); err != nil {
		return "", errs.Wrap(errs.ErrStore, err)
	}
	return key, nil
}

// AvatarURL returns a presigned download URL for key, or "" for an empty key.
func (s *Store) AvatarURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	if s.storage == nil {
		return "", errs.NewError(errs.ErrStorageDisabled)
	}

	url, err := s.storage.PresignDownload(ctx, key, storage.DownloadURLDuration)
	if err != nil {
		return "", errs.Wrap(errs.ErrStore, fmt.Errorf("presign %s: %w", key, err))
	}
	return url, nil
}

func validateAvatar(fileName, mimeType string, size int64) error {
	if err := storage.ValidateFileSize(size); err != nil {
		return err
	}
	if err := storage.ValidateFileType(fileName, mimeType); err != nil {
		return err
	}
	return nil
}
