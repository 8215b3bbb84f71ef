// Package objsync synchronizes a local directory to an object store, one
// way, uploading only what changed.
//
// A sync root carries two control files: a listing (filelist.txt) with one
// "path fingerprint size" line per file, and a version marker
// (version.txt). The same pair is published under the remote prefix. A run
// compares the version markers first; when they match nothing else is read.
// Otherwise the remote listing is fetched, each local file is compared with
// its remote record (size first, then content fingerprint, with cached
// fingerprints reused across runs), changed files are uploaded in bounded
// batches, and the control files are uploaded last.
//
// Example:
//
//	backend, err := s3.New(ctx, "my-bucket", s3.WithRegion("eu-west-1"))
//	if err != nil {
//	    return err
//	}
//	client, err := objsync.New(backend,
//	    objsync.WithLocalRoot("./public"),
//	    objsync.WithPrefix("site"),
//	)
//	if err != nil {
//	    return err
//	}
//	result, err := client.Sync(ctx)
package objsync
