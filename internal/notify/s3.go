package notify

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/oklog/ulid/v2"
)

// uploader is the part of s3manager.Uploader the sink uses.
type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Sink uploads the plate photo of each event to a bucket.
type S3Sink struct {
	uploader uploader
	bucket   string
	prefix   string
	onUpload func(ev Event, location string)
}

// NewS3Sink creates a sink for bucket in region. Credentials come from the
// default AWS chain (environment, shared config, instance role).
func NewS3Sink(bucket, region string) (*S3Sink, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return newS3Sink(s3manager.NewUploader(sess), bucket), nil
}

func newS3Sink(u uploader, bucket string) *S3Sink {
	return &S3Sink{
		uploader: u,
		bucket:   bucket,
		prefix:   "plates",
	}
}

// OnUpload registers a callback receiving the object URL of every upload.
func (s *S3Sink) OnUpload(fn func(ev Event, location string)) {
	s.onUpload = fn
}

// Name implements Sink.
func (s *S3Sink) Name() string { return "s3" }

// Send implements Sink. Events without a plate photo are skipped.
func (s *S3Sink) Send(ctx context.Context, ev Event) error {
	if len(ev.PlatePhoto) == 0 {
		return nil
	}

	key, err := s.objectKey(ev)
	if err != nil {
		return err
	}

	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(ev.PlatePhoto),
		ContentType: aws.String("image/jpeg"),
		Metadata: map[string]*string{
			"plate-number": aws.String(ev.Number),
			"gate-mode":    aws.String(ev.Mode),
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	if s.onUpload != nil {
		s.onUpload(ev, out.Location)
	}
	return nil
}

// objectKey names the object plates/<yyyy>/<mm>/<dd>/<ulid>-<number>.jpg so
// keys sort by acceptance time.
func (s *S3Sink) objectKey(ev Event) (string, error) {
	id, err := ulid.New(ulid.Timestamp(ev.AcceptedAt), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", fmt.Errorf("generate object key: %w", err)
	}

	day := ev.AcceptedAt.UTC().Format("2006/01/02")
	number := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, ev.Number)

	return fmt.Sprintf("%s/%s/%s-%s.jpg", s.prefix, day, id.String(), number), nil
}
