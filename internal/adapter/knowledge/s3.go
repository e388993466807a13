package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
)

// analysisSuffix names the per-object sidecar holding extracted text for an
// object. Objects without a sidecar match on their key path instead.
const analysisSuffix = ".analysis.json"

// ObjectStoreAPI is the slice of the S3 API the index needs. Satisfied by
// *s3.Client.
type ObjectStoreAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// analysisRecord is the structured per-object analysis sidecar.
type analysisRecord struct {
	Text string `json:"text"`
}

// ObjectIndex is the remote-object-store-backed knowledge index. Nothing is
// cached between queries; every search lists the bucket fresh.
type ObjectIndex struct {
	client ObjectStoreAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// NewObjectIndex creates an index over an S3 bucket prefix.
func NewObjectIndex(client ObjectStoreAPI, cfg config.S3Config, logger *slog.Logger) *ObjectIndex {
	return &ObjectIndex{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

// Search implements Searcher. Objects with an analysis sidecar match on the
// extracted text it records; all others match on their key path.
func (idx *ObjectIndex) Search(ctx context.Context, query string, limit int) ([]domain.Fragment, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	keys, err := idx.listKeys(ctx, idx.prefix)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var candidates []scoredFragment
	for _, key := range keys {
		searchable, excerpt := idx.searchableText(ctx, key)

		score := scoreText(searchable, terms)
		if score == 0 {
			continue
		}

		kind := objectKind(key)
		frag := domain.Fragment{
			ID:   key,
			Name: path.Base(key),
			Kind: kind,
		}
		if kind == domain.FragmentText {
			frag.Excerpt = excerpt
		}
		candidates = append(candidates, scoredFragment{frag: frag, score: score})
	}

	return rank(candidates, len(terms), limit), nil
}

// listKeys walks the bucket recursively. Keys with a trailing separator are
// folder placeholders and are recursed into rather than indexed; analysis
// sidecars are skipped.
func (idx *ObjectIndex) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(idx.bucket),
		Delimiter: aws.String("/"),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	for {
		out, err := idx.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, err
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") || strings.HasSuffix(key, analysisSuffix) {
				continue
			}
			keys = append(keys, key)
		}
		for _, cp := range out.CommonPrefixes {
			sub, err := idx.listKeys(ctx, aws.ToString(cp.Prefix))
			if err != nil {
				return nil, err
			}
			keys = append(keys, sub...)
		}

		if !aws.ToBool(out.IsTruncated) {
			return keys, nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

// searchableText returns the lower-cased text an object is matched against
// and the excerpt to attach to its fragment. A missing or unreadable sidecar
// is not an error; the object falls back to key-path matching.
func (idx *ObjectIndex) searchableText(ctx context.Context, key string) (searchable, excerpt string) {
	out, err := idx.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(idx.bucket),
		Key:    aws.String(key + analysisSuffix),
	})
	if err != nil {
		return strings.ToLower(key), ""
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		idx.logger.Warn("read analysis record failed", "key", key, "error", err)
		return strings.ToLower(key), ""
	}

	var rec analysisRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Text == "" {
		return strings.ToLower(key), ""
	}
	return strings.ToLower(rec.Text), Excerpt(rec.Text)
}

// objectKind classifies an object by key extension.
func objectKind(key string) string {
	switch strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".") {
	case "jpg", "jpeg", "png", "gif":
		return domain.FragmentImage
	default:
		return domain.FragmentText
	}
}

// Compile-time interface check.
var _ Searcher = (*ObjectIndex)(nil)
