package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/preapproval-line/internal/convo"
)

// Config holds Supabase storage settings for transcript archival.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Store persists finished call transcripts to a Supabase storage bucket.
type Store struct {
	client *supabase.Client
	bucket string
}

func New(cfg Config) (*Store, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "transcripts"
	}
	return &Store{client: client, bucket: bucket}, nil
}

type transcriptDocument struct {
	CallSID    string       `json:"call_sid"`
	ArchivedAt time.Time    `json:"archived_at"`
	Turns      []convo.Turn `json:"turns"`
}

// SaveTranscript uploads the call's conversation as a JSON object keyed by
// call SID and timestamp.
func (s *Store) SaveTranscript(callSID string, turns []convo.Turn) error {
	if callSID == "" {
		return fmt.Errorf("save transcript: call SID is empty")
	}
	doc := transcriptDocument{
		CallSID:    callSID,
		ArchivedAt: time.Now().UTC(),
		Turns:      turns,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("save transcript: marshal: %w", err)
	}
	key := fmt.Sprintf("transcript_%s_%d.json", callSID, time.Now().Unix())
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save transcript: upload %s: %w", key, err)
	}
	return nil
}
