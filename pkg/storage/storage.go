// Package storage persists uploaded resume files. The hosted pipeline only
// ever sees the returned URL, so the backend can swap between S3 and a local
// directory without touching the request flow.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Store saves uploaded files and returns a URL the fulfillment pipeline can
// fetch them from.
type Store interface {
	Save(ctx context.Context, userID, filename string, r io.Reader) (string, error)
}

// objectKey builds a collision-free key without trusting the client filename.
func objectKey(userID, filename string) string {
	base := path.Base(filename)
	base = strings.ReplaceAll(base, " ", "_")
	return fmt.Sprintf("resumes/%s/%d-%s", userID, time.Now().UnixNano(), base)
}
