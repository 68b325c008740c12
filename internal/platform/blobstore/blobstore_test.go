package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		contentType string
		size        int64
		want        error
	}{
		{"pdf", "consent.pdf", "application/pdf", 1024, nil},
		{"jpeg with params", "scan.jpg", "image/JPEG; charset=binary", 10, nil},
		{"missing name", "  ", "application/pdf", 10, ErrMissingFileName},
		{"too large", "big.pdf", "application/pdf", MaxFileSize + 1, ErrFileTooLarge},
		{"executable", "run.exe", "application/x-msdownload", 10, ErrInvalidContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.file, tt.contentType, tt.size)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestConsentKey(t *testing.T) {
	assert.Equal(t, "consents/p1/c1/form.pdf", ConsentKey("p1", "c1", "form.pdf"))
	assert.Equal(t, "consents/p1/c1/passwd", ConsentKey("p1", "c1", "../../etc/passwd"))
}

func TestBlob_SizeAndHash(t *testing.T) {
	b := &Blob{Data: []byte("abc")}
	assert.EqualValues(t, 3, b.Size())
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", b.Hash())
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	original := []byte("signed consent")
	require.NoError(t, s.Put(ctx, &Blob{Key: "k1", ContentType: "application/pdf", Data: original}))
	original[0] = 'X'

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "signed consent", string(got.Data), "store must copy input bytes")
	assert.Equal(t, "application/pdf", got.ContentType)

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "k1"), ErrBlobNotFound)
}

type fakeS3 struct {
	objects map[string]*s3.PutObjectInput
	data    map[string][]byte
	failPut error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]*s3.PutObjectInput{}, data: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = in
	f.data[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	data, ok := f.data[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: f.objects[key].ContentType,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.data, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := &S3Store{client: fake, bucket: "consents"}

	require.NoError(t, s.Put(ctx, &Blob{Key: "consents/p1/c1/a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}))
	assert.Equal(t, "consents", aws.ToString(fake.objects["consents/p1/c1/a.pdf"].Bucket))
	assert.EqualValues(t, 4, aws.ToInt64(fake.objects["consents/p1/c1/a.pdf"].ContentLength))

	got, err := s.Get(ctx, "consents/p1/c1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(got.Data))
	assert.Equal(t, "application/pdf", got.ContentType)

	require.NoError(t, s.Delete(ctx, "consents/p1/c1/a.pdf"))
	_, err = s.Get(ctx, "consents/p1/c1/a.pdf")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestS3Store_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = errors.New("access denied")
	s := &S3Store{client: fake, bucket: "consents"}

	err := s.Put(context.Background(), &Blob{Key: "k", Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*S3Store)(nil)
)
