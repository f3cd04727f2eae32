// Package filestorage stores generated audio clips in the Backblaze bucket
// and hands out presigned URLs for playback.
package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/omniaura/mapcache"
)

const presignTTL = 24 * time.Hour

type Client struct {
	S3          *s3.S3
	urlCache    *mapcache.MapCache[string, string]
	audioBucket *string
}

func NewClient(ctx context.Context) (*Client, error) {
	urlCache, err := mapcache.New[string, string](
		mapcache.WithTTL(presignTTL/2),
		mapcache.WithCleanup(ctx, presignTTL),
	)
	if err != nil {
		return nil, err
	}
	s3Config := &aws.Config{
		Credentials: credentials.NewStaticCredentials(envs.LUMEN_AUDIO_KEY_ID, secr.AUDIO_STORE_API_KEY.String(), ""),
		Region:      aws.String(envs.LUMEN_AUDIO_REGION),
		Endpoint:    aws.String(envs.LUMEN_AUDIO_ENDPOINT),
	}
	mySession, err := session.NewSession(s3Config)
	if err != nil {
		return nil, err
	}
	cl := &Client{
		S3:          s3.New(mySession),
		urlCache:    urlCache,
		audioBucket: aws.String(envs.LUMEN_AUDIO_BUCKET),
	}
	return cl, nil
}

// PutAudio uploads a synthesized clip under the user's folder and returns
// the object key.
func (cl *Client) PutAudio(ctx context.Context, userID string, audio []byte, contentType string) (string, error) {
	key := fmt.Sprintf("%s/audio/%d.mp3", userID, time.Now().UnixNano())
	_, err := cl.S3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      cl.audioBucket,
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}
	return key, nil
}

// PresignURL returns a time-limited playback URL for a stored object key.
// URLs are cached for half their lifetime so repeated playback of the same
// clip doesn't re-sign.
func (cl *Client) PresignURL(ctx context.Context, key string) (string, error) {
	return cl.urlCache.Get(key, func() (string, error) {
		input := &s3.GetObjectInput{
			Bucket: cl.audioBucket,
			Key:    aws.String(key),
		}
		objReq, _ := cl.S3.GetObjectRequest(input)
		return objReq.Presign(presignTTL)
	})
}
