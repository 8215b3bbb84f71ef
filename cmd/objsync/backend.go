package main

import (
	"context"
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/objsync"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage/dirstore"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage/minio"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage/s3"
)

func (a *app) newBackend(ctx context.Context) (storage.Backend, error) {
	v := a.v
	switch kind := v.GetString("backend"); kind {
	case "s3":
		opts := []s3.Option{
			s3.WithRegion(v.GetString("region")),
			s3.WithEndpoint(v.GetString("endpoint")),
			s3.WithPathStyle(v.GetBool("path-style")),
			s3.WithConcurrency(v.GetInt("part-concurrency")),
		}
		if key := v.GetString("access-key"); key != "" {
			opts = append(opts, s3.WithCredentials(key, v.GetString("secret-key"), ""))
		}
		return s3.New(ctx, v.GetString("bucket"), opts...)

	case "minio":
		return minio.New(v.GetString("endpoint"), v.GetString("bucket"),
			minio.WithCredentials(v.GetString("access-key"), v.GetString("secret-key")),
			minio.WithSecure(!v.GetBool("insecure")),
			minio.WithRegion(v.GetString("region")),
		)

	case "dir":
		dir := v.GetString("dir")
		if dir == "" {
			return nil, fmt.Errorf("--dir is required for the dir backend")
		}
		return dirstore.NewOS(dir), nil

	default:
		return nil, fmt.Errorf("unknown backend %q (want s3, minio or dir)", kind)
	}
}

func (a *app) newClient(ctx context.Context) (*objsync.Client, error) {
	backend, err := a.newBackend(ctx)
	if err != nil {
		return nil, err
	}

	v := a.v
	opts := []objtypes.Option{
		objsync.WithLocalRoot(v.GetString("root")),
		objsync.WithPrefix(v.GetString("prefix")),
		objsync.WithWorkers(v.GetInt("workers")),
		objsync.WithHashChunkMiB(v.GetInt("hash-chunk-mib")),
		objsync.WithDeleteExtra(v.GetBool("delete-extra")),
		objsync.WithRootPrune(v.GetBool("allow-root-prune")),
		objsync.WithExcludePatterns(v.GetStringSlice("exclude")...),
		objsync.WithLogger(a.logger),
	}
	if p := v.GetString("cache"); p != "" {
		opts = append(opts, objsync.WithCachePath(p))
	}
	if p := v.GetString("lock"); p != "" {
		opts = append(opts, objsync.WithLockFile(p))
	}

	return objsync.New(backend, opts...)
}
