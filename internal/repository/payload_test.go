package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayloadKey(t *testing.T) {
	k := NewPayloadKey(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(k, "2026/03/01/"), k)
	assert.NotEqual(t, k, NewPayloadKey(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestKVPayloads(t *testing.T) {
	p := NewKVPayloads(newStore(t))
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "k1", []byte("data"), "image/png"))
	b, err := p.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	require.NoError(t, p.Delete(ctx, "k1"))
	require.NoError(t, p.Delete(ctx, "k1"))
	_, err = p.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrPayloadMissing)
	assert.ErrorIs(t, err, ErrNotFound)
}

// fakeS3 keeps objects in a map.
type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Bucket+"/"+*in.Key] = b
	f.types[*in.Bucket+"/"+*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Payloads(t *testing.T) {
	fake := newFakeS3()
	p := &S3Payloads{client: fake, bucket: "vault", prefix: "payloads/"}
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "2026/03/01/x", []byte("img"), "image/png"))
	assert.Contains(t, fake.objects, "vault/payloads/2026/03/01/x")
	assert.Equal(t, "image/png", fake.types["vault/payloads/2026/03/01/x"])

	b, err := p.Get(ctx, "2026/03/01/x")
	require.NoError(t, err)
	assert.Equal(t, "img", string(b))

	require.NoError(t, p.Delete(ctx, "2026/03/01/x"))
	require.NoError(t, p.Delete(ctx, "2026/03/01/x"))
	_, err = p.Get(ctx, "2026/03/01/x")
	assert.ErrorIs(t, err, ErrPayloadMissing)

	fake.putErr = errBoom
	assert.ErrorIs(t, p.Put(ctx, "y", []byte("img"), ""), errBoom)
}

func TestNewS3Payloads_AppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		return aws.Config{Region: lo.Region}, nil
	}
	var applied s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		for _, fn := range optFns {
			fn(&applied)
		}
		return newFakeS3()
	}

	p, err := NewS3Payloads(context.Background(), S3Options{
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "vault",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(applied.BaseEndpoint))
	assert.True(t, applied.UsePathStyle)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Payloads(context.Background(), S3Options{Bucket: "vault"})
	assert.Error(t, err)

	_, err = NewS3Payloads(context.Background(), S3Options{})
	assert.Error(t, err)
}
