package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/gateway"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"go.uber.org/zap"
)

// EvidenceService stores effectiveness evidence attachments in object
// storage and tracks their paths on the pending evaluation record. With no
// MinIO client configured the feature is disabled; the evaluation flow
// itself does not depend on attachments.
type EvidenceService struct {
	gw          *gateway.SyncGateway
	effRepo     *repository.EffectivenessRepository
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
}

func NewEvidenceService(gw *gateway.SyncGateway, effRepo *repository.EffectivenessRepository, minioClient *minio.Client, bucketName string, logger *zap.Logger) *EvidenceService {
	return &EvidenceService{gw: gw, effRepo: effRepo, minioClient: minioClient, bucketName: bucketName, logger: logger}
}

// Enabled reports whether object storage is configured.
func (s *EvidenceService) Enabled() bool {
	return s.minioClient != nil
}

// Upload streams a file to object storage under
// {companyId}/{ncId}/{uuid}-{filename} and appends the object path to the
// pending effectiveness record of the NC's current revision.
func (s *EvidenceService) Upload(ctx context.Context, companyID, ncID, fileName string, reader io.Reader, fileSize int64, contentType string) (string, error) {
	if s.minioClient == nil {
		return "", newValidationError("armazenamento de evidências não está configurado")
	}
	if fileName == "" {
		return "", newValidationError("nome do arquivo é obrigatório")
	}

	nc, err := s.gw.GetAuthoritative(ctx, companyID, ncID)
	if err != nil {
		return "", err
	}

	rec, err := s.effRepo.FindPendingByNC(ctx, companyID, ncID, nc.RevisionNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", newValidationError("não há avaliação de eficácia pendente para anexar evidências")
		}
		return "", err
	}

	objectName := fmt.Sprintf("%s/%s/%s-%s", companyID, ncID, uuid.New().String()[:8], fileName)
	_, err = s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}

	if err := s.appendFile(ctx, rec, objectName); err != nil {
		// The object is stored; only the record link failed.
		s.logger.Warn("Linking evidence file to record failed",
			zap.String("nc_id", ncID), zap.String("object", objectName), zap.Error(err))
		return "", err
	}

	return objectName, nil
}

func (s *EvidenceService) appendFile(ctx context.Context, rec *entity.EffectivenessRecord, objectName string) error {
	var files []string
	if len(rec.EvidenceFiles) > 0 {
		if err := json.Unmarshal(rec.EvidenceFiles, &files); err != nil {
			return fmt.Errorf("decode evidence files: %w", err)
		}
	}
	files = append(files, objectName)

	raw, err := json.Marshal(files)
	if err != nil {
		return err
	}
	rec.EvidenceFiles = raw
	return s.effRepo.Update(ctx, rec)
}
