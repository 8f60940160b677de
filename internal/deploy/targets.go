package deploy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jasonAVM/Map-Viewer/internal/config"
)

var ErrNoBucket = errors.New("deploy bucket is not configured")

// Target is one directory synced to the bucket.
type Target struct {
	Name        string
	Source      string
	Destination string
	// Exclude and Include are passed to the sync command in that order, so
	// includes win over excludes for the same file.
	Exclude []string
	Include []string
	Delete  bool
}

const (
	TargetWeb   = "web"
	TargetTiles = "tiles"
)

// DefaultTargets returns the viewer and tile targets. webDir and tilesDir are
// the local sources.
func DefaultTargets(bucket, webDir, tilesDir string) []Target {
	return []Target{
		{
			Name:        TargetWeb,
			Source:      webDir,
			Destination: BucketURL(bucket, TargetWeb),
			Exclude:     []string{"*.DS_Store"},
		},
		// The leading "*" drops everything so only the includes are sent.
		{
			Name:        TargetTiles,
			Source:      tilesDir,
			Destination: BucketURL(bucket, TargetTiles),
			Exclude:     []string{"*", "*.aux.xml", "*.kml", "*.html"},
			Include:     []string{"*.png"},
		},
	}
}

// BucketURL joins bucket and prefix, adding the s3:// scheme to a bare
// bucket name.
func BucketURL(bucket, prefix string) string {
	bucket = strings.TrimRight(strings.TrimSpace(bucket), "/")
	if bucket == "" {
		return ""
	}
	if !strings.Contains(bucket, "://") {
		bucket = "s3://" + bucket
	}
	return bucket + "/" + strings.Trim(prefix, "/")
}

// TargetsFromConfig starts from the default targets and applies the
// configured ones on top: a configured target replaces the default of the
// same name, other names are appended. Sources resolve against the project
// directory.
func TargetsFromConfig(c config.Config) ([]Target, error) {
	targets := DefaultTargets(c.Deploy.Bucket, c.WebPath(), c.TilesPath())
	for i := range targets {
		targets[i].Delete = c.Deploy.Delete
	}

	for _, ct := range c.Deploy.Targets {
		t := Target{
			Name:        ct.Name,
			Source:      c.Path(ct.Source),
			Destination: ct.Destination,
			Exclude:     append([]string(nil), ct.Exclude...),
			Include:     append([]string(nil), ct.Include...),
		}
		if t.Destination == "" {
			t.Destination = BucketURL(c.Deploy.Bucket, ct.Name)
		}
		// An include only re-admits excluded files.
		if len(t.Include) > 0 && len(t.Exclude) == 0 {
			t.Exclude = []string{"*"}
		}
		if ct.Delete != nil {
			t.Delete = *ct.Delete
		} else {
			t.Delete = c.Deploy.Delete
		}

		replaced := false
		for i := range targets {
			if targets[i].Name == t.Name {
				targets[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			targets = append(targets, t)
		}
	}

	for i := range targets {
		if targets[i].Destination == "" {
			return nil, fmt.Errorf("target %s: %w", targets[i].Name, ErrNoBucket)
		}
	}
	return targets, nil
}
