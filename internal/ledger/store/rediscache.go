package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"attestry/internal/ledger/models"
	"attestry/pkg/domain"
)

// DocumentReader is the read side a cache can front.
type DocumentReader interface {
	Find(ctx context.Context, fp domain.Fingerprint) (*models.Document, error)
}

// RedisCache is a read-through cache over a document store. Records are
// cached only once terminal: a Pending record can still mutate, a decided
// one never will, so terminal entries can live out the full TTL without any
// invalidation protocol.
type RedisCache struct {
	next   DocumentReader
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(next DocumentReader, client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{next: next, client: client, ttl: ttl}
}

type cachedDocument struct {
	Fingerprint     string    `json:"fingerprint"`
	Owner           string    `json:"owner"`
	Metadata        string    `json:"metadata"`
	Status          string    `json:"status"`
	SubmittedAt     time.Time `json:"submitted_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	DecidedBy       string    `json:"decided_by,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

func (c *RedisCache) Find(ctx context.Context, fp domain.Fingerprint) (*models.Document, error) {
	key := cacheKey(fp)

	// Misses, redis trouble and corrupt entries all fall through to the
	// store; a terminal record gets rewritten below.
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		if doc, decodeErr := decodeCached(raw); decodeErr == nil {
			return doc, nil
		}
	}

	doc, err := c.next.Find(ctx, fp)
	if err != nil {
		return nil, err
	}

	if doc.Status != models.StatusPending {
		if encoded, encodeErr := encodeCached(doc); encodeErr == nil {
			_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
		}
	}
	return doc, nil
}

func cacheKey(fp domain.Fingerprint) string {
	return "attestry:document:" + fp.String()
}

func encodeCached(doc *models.Document) ([]byte, error) {
	c := cachedDocument{
		Fingerprint:     doc.Fingerprint.String(),
		Owner:           doc.Owner.String(),
		Metadata:        doc.Metadata,
		Status:          string(doc.Status),
		SubmittedAt:     doc.SubmittedAt,
		ExpiresAt:       doc.ExpiresAt,
		RejectionReason: doc.RejectionReason,
	}
	if !doc.DecidedBy.IsZero() {
		c.DecidedBy = doc.DecidedBy.String()
	}
	return json.Marshal(c)
}

func decodeCached(raw []byte) (*models.Document, error) {
	var c cachedDocument
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	fp, err := domain.ParseFingerprint(c.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("cached fingerprint is malformed: %w", err)
	}
	owner, err := domain.ParseIdentity(c.Owner)
	if err != nil {
		return nil, fmt.Errorf("cached owner is malformed: %w", err)
	}
	doc := &models.Document{
		Fingerprint:     fp,
		Owner:           owner,
		Metadata:        c.Metadata,
		Status:          models.Status(c.Status),
		SubmittedAt:     c.SubmittedAt,
		ExpiresAt:       c.ExpiresAt,
		RejectionReason: c.RejectionReason,
	}
	if c.DecidedBy != "" {
		if doc.DecidedBy, err = domain.ParseIdentity(c.DecidedBy); err != nil {
			return nil, fmt.Errorf("cached decider is malformed: %w", err)
		}
	}
	return doc, nil
}
