package builtin

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/parley-ai/parley/internal/tool"
)

const maxAnalyzedBytes = 4 << 20

// ObjectFetcher reads stored objects; *minio.Client satisfies it via
// MinioFetcher.
type ObjectFetcher interface {
	Fetch(ctx context.Context, object string) (io.ReadCloser, error)
}

// MinioFetcher reads objects from a fixed MinIO bucket
type MinioFetcher struct {
	Client *minio.Client
	Bucket string
}

func (f *MinioFetcher) Fetch(ctx context.Context, object string) (io.ReadCloser, error) {
	obj, err := f.Client.GetObject(ctx, f.Bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// FileAnalyzer returns a tool that fetches a stored text object and
// reports its metrics
func FileAnalyzer(fetcher ObjectFetcher) tool.Tool {
	return tool.Tool{
		Name:        "file_analyzer",
		Description: "Fetch an uploaded file from object storage and analyze its text content",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"object": {Type: "string", Description: "Object key of the uploaded file"},
		}, "object"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			object := args["object"].(string)

			rc, err := fetcher.Fetch(ctx, object)
			if err != nil {
				return "", fmt.Errorf("fetch object %s: %w", object, err)
			}
			defer rc.Close()

			data, err := io.ReadAll(io.LimitReader(rc, maxAnalyzedBytes))
			if err != nil {
				return "", fmt.Errorf("read object %s: %w", object, err)
			}
			if len(data) == 0 {
				return "", fmt.Errorf("object %s is empty", object)
			}
			if !isProbablyText(data) {
				return fmt.Sprintf("File %s (%d bytes, %s) appears to be binary; text analysis skipped.",
					object, len(data), strings.TrimPrefix(path.Ext(object), ".")), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "File %s (%d bytes):\n\n", object, len(data))
			sb.WriteString(analyzeText(string(data)))
			return sb.String(), nil
		}),
	}
}

func isProbablyText(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	for _, b := range sample {
		if b == 0 {
			return false
		}
	}
	return true
}
