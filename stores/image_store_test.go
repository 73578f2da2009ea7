package stores

import (
	"context"
	"errors"
	"io/ioutil"
	"regexp"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	se "wuyrush.io/pinboard/errors"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestNewImageKey(t *testing.T) {
	cases := []struct {
		filename string
		ext      string
	}{
		{"cat.PNG", ".png"},
		{"photo.jpeg", ".jpeg"},
		{"noext", ""},
		{"weird.p/ng", ""},
		{"evil.../../x", ""},
	}
	for _, c := range cases {
		t.Run(c.filename, func(t *testing.T) {
			key := NewImageKey(c.filename)
			assert.Regexp(t, regexp.MustCompile(`^pins/\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}`+regexp.QuoteMeta(c.ext)+`$`), key)
		})
	}
	assert.NotEqual(t, NewImageKey("a.png"), NewImageKey("a.png"))
}

func TestS3ImageStoreSave(t *testing.T) {
	api := &mockS3{}
	s := newS3ImageStore(api, &S3Config{Bucket: "pins", Endpoint: "http://minio:9000", PublicURL: "https://cdn.example.com/"})
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		data, _ := ioutil.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "pins" &&
			aws.ToString(in.ContentType) == "image/png" &&
			aws.ToInt64(in.ContentLength) == 4 &&
			string(data) == "\x89PNG"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	img, err := s.Save(context.Background(), &Upload{Filename: "a.png", ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG")})
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(img.ID, "pins/"))
	assert.Equal(t, "https://cdn.example.com/pins/"+img.ID, img.URL)
	api.AssertExpectations(t)
}

func TestS3ImageStoreSaveFailure(t *testing.T) {
	api := &mockS3{}
	s := newS3ImageStore(api, &S3Config{Bucket: "pins", Region: "us-west-2"})
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	_, err := s.Save(context.Background(), &Upload{Filename: "a.png", ContentType: "image/png", Body: strings.NewReader("x")})
	require.NotNil(t, err)
	assert.Equal(t, se.ErrCodeUploadFailed, err.Code)
	assert.Equal(t, "https://s3.us-west-2.amazonaws.com", s.baseURL)
}

func TestS3ImageStoreDelete(t *testing.T) {
	api := &mockS3{}
	s := newS3ImageStore(api, &S3Config{Bucket: "pins", Endpoint: "http://minio:9000"})
	api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "pins/k1"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "pins/k2"
	})).Return(nil, errors.New("boom")).Once()

	assert.Nil(t, s.Delete(context.Background(), "pins/k1"))
	err := s.Delete(context.Background(), "pins/k2")
	require.NotNil(t, err)
	assert.Equal(t, se.ErrCodeServiceFailure, err.Code)
	// empty ids never reach S3
	assert.Nil(t, s.Delete(context.Background(), ""))
	api.AssertExpectations(t)
}
