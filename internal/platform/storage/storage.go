package storage

import (
	"bytes"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"listingreel/internal/logger"
)

// Uploader is the slice of object storage the workflows need: write bytes to
// a stable key and get back a public URL. Repeats on the same key overwrite,
// which is what makes upload steps safe to re-run.
type Uploader interface {
	Upload(path string, data []byte, contentType string) (string, error)
}

type Service struct {
	client *storage_go.Client
	bucket string
	log    *logger.Logger
}

func New(supabaseURL, serviceKey, bucket string) (*Service, error) {
	if supabaseURL == "" || serviceKey == "" || bucket == "" {
		return nil, fmt.Errorf("storage requires SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_STORAGE_BUCKET")
	}
	endpoint := strings.TrimRight(supabaseURL, "/") + "/storage/v1"
	client := storage_go.NewClient(endpoint, serviceKey, nil)
	return &Service{client: client, bucket: bucket, log: logger.New("Storage")}, nil
}

func (s *Service) Upload(path string, data []byte, contentType string) (string, error) {
	upsert := true
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	if _, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	resp := s.client.GetPublicUrl(s.bucket, path)
	s.log.LogDebugf("uploaded %s (%d bytes)", path, len(data))
	return resp.SignedURL, nil
}

// ImagePath and friends key uploads by entity so retries overwrite instead of
// accumulating duplicates.

func ImagePath(listingID, filename string) string {
	return fmt.Sprintf("listings/%s/images/%s", listingID, filename)
}

func VoiceOverPath(listingID, groupID string) string {
	return fmt.Sprintf("listings/%s/voice-overs/%s.mp3", listingID, groupID)
}

func AutoReelPath(listingID, groupID string) string {
	return fmt.Sprintf("listings/%s/auto-reels/%s.mp4", listingID, groupID)
}

func FinalVideoPath(listingID, groupID string) string {
	return fmt.Sprintf("listings/%s/reels/%s.mp4", listingID, groupID)
}
