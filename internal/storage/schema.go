package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
SchemaVersion identifies the on-disk/Redis layout this binary expects:
frontier line format, fetch-queue gob shape, and the domain-hash field
set. Bumping it is a signal to operators that old data needs a reindex;
this package only records and checks it, it never migrates automatically.
*/
const SchemaVersion = "1"

// EnsureDirLayout creates the frontiers/ and content/ trees under dataDir
// if absent (orchestrator init step 5, "initialize storage: directory
// layout").
func EnsureDirLayout(dataDir string) error {
	for _, sub := range []string{"frontiers", "content"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0755); err != nil {
			return err
		}
	}
	return nil
}

// ListFrontierDomains walks the frontiers/ tree and returns every domain
// that has a frontier file on disk, derived from each file's name
// (stripping the .frontier suffix FrontierStore.Path appends). A missing
// frontiers/ directory (first run) is not an error — it yields no domains.
func ListFrontierDomains(dataDir string) ([]string, error) {
	root := filepath.Join(dataDir, "frontiers")
	var domains []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if ext := filepath.Ext(name); ext == ".frontier" {
			domains = append(domains, strings.TrimSuffix(name, ext))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return domains, nil
}

// RemoveFrontierTree recursively deletes dataDir/frontiers/, used by
// "fresh" mode start (spec.md §4.1 "Clearing & resume") after the caller
// has already cleared the matching Redis state. Callers must re-run
// EnsureDirLayout afterward so the directory exists for the next append.
func RemoveFrontierTree(dataDir string) error {
	return os.RemoveAll(filepath.Join(dataDir, "frontiers"))
}

// ReconcileSchemaVersion sets crawler:schema_version if absent. If a prior
// run recorded a different version it reports matched=false with that
// previous version and a nil error — the orchestrator logs this and
// proceeds, since a spec-level migration strategy is out of scope.
func ReconcileSchemaVersion(ctx context.Context, client *redis.Client) (matched bool, previous string, err error) {
	ok, err := client.SetNX(ctx, redisconn.KeySchemaVersion, SchemaVersion, 0).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, SchemaVersion, nil
	}
	previous, err = client.Get(ctx, redisconn.KeySchemaVersion).Result()
	if err == redis.Nil {
		return true, SchemaVersion, nil
	}
	if err != nil {
		return false, "", err
	}
	return previous == SchemaVersion, previous, nil
}
