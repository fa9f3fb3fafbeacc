package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/ports"
)

const (
	fieldArtifact = "artifact"
	fieldDocument = "document"
)

type artifactRecord struct {
	Handle    string `json:"handle"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Content   []byte `json:"content"`
}

type documentRecord struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	FileType      string    `json:"file_type"`
	FileSizeLabel string    `json:"file_size"`
	UploadDate    time.Time `json:"upload_date"`
	ContractType  string    `json:"contract_type,omitempty"`
}

// RedisFactory opens Redis-backed stores that expire with the browser session.
type RedisFactory struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.SessionStoreFactory = (*RedisFactory)(nil)

// NewRedisFactory connects to Redis and verifies the connection.
func NewRedisFactory(redisURL string, ttl time.Duration) (*RedisFactory, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisFactoryWithClient(client, ttl), nil
}

// NewRedisFactoryWithClient creates a factory from an existing Redis client.
func NewRedisFactoryWithClient(client *redis.Client, ttl time.Duration) *RedisFactory {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisFactory{client: client, prefix: "session:", ttl: ttl}
}

// Open returns the store for one session id.
func (f *RedisFactory) Open(sessionID string) ports.SessionStore {
	return &RedisStore{client: f.client, key: f.prefix + sessionID, ttl: f.ttl}
}

// Close closes the Redis connection.
func (f *RedisFactory) Close() error {
	return f.client.Close()
}

// Ping checks if Redis is reachable.
func (f *RedisFactory) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// RedisStore keeps one session as a Redis hash with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ ports.SessionStore = (*RedisStore)(nil)

// Get reads the whole session in one round trip.
func (s *RedisStore) Get(ctx context.Context) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return domain.Session{}, nil
	}

	var session domain.Session
	if raw, ok := fields[fieldArtifact]; ok {
		var rec artifactRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal artifact: %w", err)
		}
		session.UploadedArtifact = &domain.UploadedArtifact{
			Handle:    rec.Handle,
			FileName:  rec.FileName,
			MimeType:  rec.MimeType,
			SizeBytes: rec.SizeBytes,
			Content:   rec.Content,
		}
	}
	if raw, ok := fields[fieldDocument]; ok {
		var rec documentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal document: %w", err)
		}
		session.ActiveDocument = &domain.DocumentRecord{
			ID:            rec.ID,
			Title:         rec.Title,
			FileType:      rec.FileType,
			FileSizeLabel: rec.FileSizeLabel,
			UploadDate:    rec.UploadDate,
			ContractType:  rec.ContractType,
		}
	}

	if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
		return domain.Session{}, fmt.Errorf("refresh session ttl: %w", err)
	}
	return session, nil
}

// SetUploadedArtifact replaces the selected file; nil detaches it.
func (s *RedisStore) SetUploadedArtifact(ctx context.Context, artifact *domain.UploadedArtifact) error {
	if artifact == nil {
		return s.del(ctx, fieldArtifact)
	}
	return s.put(ctx, fieldArtifact, artifactRecord{
		Handle:    artifact.Handle,
		FileName:  artifact.FileName,
		MimeType:  artifact.MimeType,
		SizeBytes: artifact.SizeBytes,
		Content:   artifact.Content,
	})
}

// SetActiveDocument replaces the active document; nil clears it.
func (s *RedisStore) SetActiveDocument(ctx context.Context, record *domain.DocumentRecord) error {
	if record == nil {
		return s.del(ctx, fieldDocument)
	}
	return s.put(ctx, fieldDocument, documentRecord{
		ID:            record.ID,
		Title:         record.Title,
		FileType:      record.FileType,
		FileSizeLabel: record.FileSizeLabel,
		UploadDate:    record.UploadDate,
		ContractType:  record.ContractType,
	})
}

// Clear deletes the session key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *RedisStore) put(ctx context.Context, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", field, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, field, data)
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", field, err)
	}
	return nil
}

func (s *RedisStore) del(ctx context.Context, field string) error {
	if err := s.client.HDel(ctx, s.key, field).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", field, err)
	}
	return nil
}
