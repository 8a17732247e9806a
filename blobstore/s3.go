package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

// S3 is a Store backed by an S3-compatible bucket, using the original
// implementation's hand-rolled SigV1 signing (cargo-registry-s3's
// Bucket::auth) rather than the full AWS request-signing machinery, since
// the registry only ever issues PUT/GET/DELETE against one bucket.
type S3 struct {
	bucket    string
	region    string
	accessKey string
	secretKey string
	proto     string
	client    *http.Client
}

var _ Store = (*S3)(nil)

// NewS3 builds an S3-backed Store. proto is typically "https".
func NewS3(bucket, region, accessKey, secretKey, proto string) *S3 {
	if proto == "" {
		proto = "https"
	}
	return &S3{
		bucket:    bucket,
		region:    region,
		accessKey: accessKey,
		secretKey: secretKey,
		proto:     proto,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

const opS3 = "blobstore.S3"

func (s *S3) host() string {
	if s.region != "" {
		return fmt.Sprintf("%s.s3-%s.amazonaws.com", s.bucket, s.region)
	}
	return fmt.Sprintf("%s.s3.amazonaws.com", s.bucket)
}

func (s *S3) url(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.proto, s.host(), strings.TrimPrefix(key, "/"))
}

// auth computes the SigV1 Authorization header value for verb/date/key
// against content-type, following the canonical string
// "verb\nmd5\ncontent-type\ndate\n/bucket/key".
func (s *S3) auth(verb, date, key, contentType string) string {
	canonical := fmt.Sprintf("%s\n\n%s\n%s\n/%s/%s", verb, contentType, date, s.bucket, strings.TrimPrefix(key, "/"))
	mac := hmac.New(sha1.New, []byte(s.secretKey))
	mac.Write([]byte(canonical))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("AWS %s:%s", s.accessKey, sig)
}

func (s *S3) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	date := time.Now().UTC().Format(time.RFC1123Z)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url(key), r)
	if err != nil {
		return apperror.Wrap(apperror.Internal, opS3, "building PUT request", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", s.auth(http.MethodPut, date, key, contentType))
	req.Header.Set("User-Agent", "crates-registry-core")

	zlog.Debug(ctx).Str("key", key).Int64("size", size).Msg("uploading blob to s3")
	resp, err := s.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.Upstream, opS3, "PUT request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apperror.New(apperror.Upstream, opS3, fmt.Sprintf("PUT %s returned status %d", key, resp.StatusCode))
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	date := time.Now().UTC().Format(time.RFC1123Z)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(key), nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, opS3, "building GET request", err)
	}
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", s.auth(http.MethodGet, date, key, ""))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.Upstream, opS3, "GET request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperror.New(apperror.NotFound, opS3, "no such blob: "+key)
	}
	if resp.StatusCode/100 != 2 {
		return nil, apperror.New(apperror.Upstream, opS3, fmt.Sprintf("GET %s returned status %d", key, resp.StatusCode))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Wrap(apperror.Upstream, opS3, "reading GET body", err)
	}
	return b, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	date := time.Now().UTC().Format(time.RFC1123Z)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.url(key), nil)
	if err != nil {
		return apperror.Wrap(apperror.Internal, opS3, "building DELETE request", err)
	}
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", s.auth(http.MethodDelete, date, key, ""))

	resp, err := s.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.Upstream, opS3, "DELETE request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return apperror.New(apperror.Upstream, opS3, fmt.Sprintf("DELETE %s returned status %d", key, resp.StatusCode))
	}
	return nil
}

// DeletePrefix lists objects under prefix via the bucket's GET ?list-type=2
// endpoint and issues a DELETE per key; S3-compatible object storage has no
// server-side prefix-delete primitive.
func (s *S3) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// listBucketResult is the subset of the S3 ListObjectsV2 XML response this
// registry needs.
type listBucketResult struct {
	Contents []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
	IsTruncated bool   `xml:"IsTruncated"`
	NextToken   string `xml:"NextContinuationToken"`
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	token := ""
	for {
		u := fmt.Sprintf("%s://%s/?list-type=2&prefix=%s", s.proto, s.host(), prefix)
		if token != "" {
			u += "&continuation-token=" + token
		}
		date := time.Now().UTC().Format(time.RFC1123Z)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, opS3, "building LIST request", err)
		}
		req.Header.Set("Date", date)
		req.Header.Set("Authorization", s.auth(http.MethodGet, date, "", ""))

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, apperror.Wrap(apperror.Upstream, opS3, "LIST request failed", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, apperror.New(apperror.Upstream, opS3, fmt.Sprintf("LIST returned status %d", resp.StatusCode))
		}
		if readErr != nil {
			return nil, apperror.Wrap(apperror.Upstream, opS3, "reading LIST body", readErr)
		}
		var result listBucketResult
		if err := xml.Unmarshal(body, &result); err != nil {
			return nil, apperror.Wrap(apperror.Upstream, opS3, "decoding LIST response", err)
		}
		for _, c := range result.Contents {
			out = append(out, c.Key)
		}
		if !result.IsTruncated {
			break
		}
		token = result.NextToken
	}
	return out, nil
}
