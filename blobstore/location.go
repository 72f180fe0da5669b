package blobstore

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Location is a parsed store address. Local paths have an empty Scheme.
type Location struct {
	Scheme string // "", "s3" or "minio"
	Bucket string
	Key    string // object key, or the file path for local locations
}

// IsRemote reports whether the location lives in an object store.
func (l Location) IsRemote() bool { return l.Scheme != "" }

// Dir returns the prefix (remote) or directory (local) holding the blob.
func (l Location) Dir() string {
	if l.IsRemote() {
		if i := strings.LastIndex(l.Key, "/"); i >= 0 {
			return l.Key[:i]
		}
		return ""
	}
	return filepath.Dir(l.Key)
}

// Name returns the blob name inside Dir.
func (l Location) Name() string {
	if l.IsRemote() {
		return l.Key[strings.LastIndex(l.Key, "/")+1:]
	}
	return filepath.Base(l.Key)
}

func (l Location) String() string {
	if !l.IsRemote() {
		return l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseLocation parses "s3://bucket/key", "minio://bucket/key" or a local path.
func ParseLocation(raw string) (Location, error) {
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return Location{}, fmt.Errorf("empty location")
		}
		return Location{Key: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	switch u.Scheme {
	case "s3", "minio":
	default:
		return Location{}, fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("location %q needs a bucket and an object key", raw)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
}
