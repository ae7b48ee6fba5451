// Package backup uploads an encrypted copy of the credential vault to an
// S3-compatible bucket whenever an identity is added. The copy is encrypted
// to operator age recipients, so neither the bucket nor the vault secret is
// enough to read it.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"github.com/google/uuid"
)

const (
	DefaultPrefix = "vault-escrow"
	uploadTimeout = 30 * time.Second
	contentType   = "application/age-encryption"
)

// ObjectPutter is the part of the S3 client the escrow uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Recipients []string
	Logger     logging.Logger
	Now        func() time.Time
}

type Escrow struct {
	client     ObjectPutter
	bucket     string
	prefix     string
	recipients []age.Recipient
	logger     logging.Logger
	now        func() time.Time
}

// snapshot is the plaintext inside the age envelope.
type snapshot struct {
	CreatedAt time.Time      `json:"created_at"`
	Records   []vault.Record `json:"records"`
}

// New builds an S3 client from cfg and returns an escrow writing to it.
func New(ctx context.Context, cfg Config) (*Escrow, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and most self-hosted gateways do not route virtual-host buckets
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg)
}

// NewWithClient returns an escrow using an existing client.
func NewWithClient(client ObjectPutter, cfg Config) (*Escrow, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("backup: bucket must be set")
	}
	recipients, err := ParseRecipients(cfg.Recipients)
	if err != nil {
		return nil, err
	}

	e := &Escrow{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		recipients: recipients,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if e.prefix == "" {
		e.prefix = DefaultPrefix
	}
	if e.logger == nil {
		e.logger = logging.Nop()
	}
	e.logger = e.logger.With("module", "escrow")
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// ParseRecipients parses age X25519 public keys. At least one is required.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, errors.New("backup: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("backup: recipient %q: %w", key, err)
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// Seal encrypts records to recipients.
func Seal(records []vault.Record, createdAt time.Time, recipients ...age.Recipient) ([]byte, error) {
	plaintext, err := json.Marshal(snapshot{CreatedAt: createdAt.UTC(), Records: records})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Escrow) objectKey(t time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%02d/%v.age", e.prefix, t.Year(), t.Month(), t.Day(), uuid.New())
}

// Upload seals records and stores them under a fresh object key, which is returned.
func (e *Escrow) Upload(ctx context.Context, records []vault.Record) (string, error) {
	now := e.now().UTC()
	body, err := Seal(records, now, e.recipients...)
	if err != nil {
		return "", err
	}

	key := e.objectKey(now)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("escrow upload: %w", err)
	}
	return key, nil
}

// Observer adapts the escrow to vault change notifications. Failures are
// logged; the vault change itself has already been persisted.
func (e *Escrow) Observer() vault.Observer {
	return func(ctx context.Context, records []vault.Record) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
		defer cancel()

		key, err := e.Upload(ctx, records)
		if err != nil {
			e.logger.Error(ctx, "vault escrow failed", "error", err)
			return
		}
		e.logger.Info(ctx, "vault escrowed", "bucket", e.bucket, "key", key, "records", len(records))
	}
}
