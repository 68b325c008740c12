package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/internal/platform/blobstore"
)

// UploadConsent stores a consent form file and records it against the patient.
func (s *Service) UploadConsent(ctx context.Context, u auth.User, patientID uuid.UUID, fileName, contentType string, data []byte) (*PatientConsent, error) {
	if _, err := s.authorised(ctx, u, patientID); err != nil {
		return nil, err
	}
	if err := blobstore.Validate(fileName, contentType, int64(len(data))); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	c := &PatientConsent{
		ID:          uuid.New(),
		PatientID:   patientID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	c.StorageKey = blobstore.ConsentKey(patientID.String(), c.ID.String(), fileName)

	if err := s.blobs.Put(ctx, &blobstore.Blob{Key: c.StorageKey, ContentType: contentType, Data: data}); err != nil {
		return nil, fmt.Errorf("store consent: %w", err)
	}
	if err := s.patients.AddConsent(ctx, c); err != nil {
		if delErr := s.blobs.Delete(ctx, c.StorageKey); delErr != nil {
			s.logger.Error().Err(delErr).Str("key", c.StorageKey).Msg("remove orphaned consent file")
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) ListConsents(ctx context.Context, u auth.User, patientID uuid.UUID) ([]*PatientConsent, error) {
	if _, err := s.authorised(ctx, u, patientID); err != nil {
		return nil, err
	}
	return s.patients.ListConsents(ctx, patientID)
}

func (s *Service) consent(ctx context.Context, u auth.User, patientID, consentID uuid.UUID) (*PatientConsent, error) {
	if _, err := s.authorised(ctx, u, patientID); err != nil {
		return nil, err
	}
	c, err := s.patients.GetConsent(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.PatientID != patientID {
		return nil, ErrNotFound
	}
	return c, nil
}

// DownloadConsent returns the consent record and its file.
func (s *Service) DownloadConsent(ctx context.Context, u auth.User, patientID, consentID uuid.UUID) (*PatientConsent, *blobstore.Blob, error) {
	c, err := s.consent(ctx, u, patientID, consentID)
	if err != nil {
		return nil, nil, err
	}
	blob, err := s.blobs.Get(ctx, c.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch consent %s: %w", c.ID, err)
	}
	return c, blob, nil
}

// DeleteConsent removes the record first. A file left behind is only logged.
func (s *Service) DeleteConsent(ctx context.Context, u auth.User, patientID, consentID uuid.UUID) error {
	c, err := s.consent(ctx, u, patientID, consentID)
	if err != nil {
		return err
	}
	if err := s.patients.DeleteConsent(ctx, c.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, c.StorageKey); err != nil {
		s.logger.Warn().Err(err).Str("key", c.StorageKey).Msg("delete consent file")
	}
	return nil
}
