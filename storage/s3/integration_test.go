//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/input-output-hk/catalyst-forge-libs/objsync"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage/s3"
)

func startLocalStack(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := localstack.Run(ctx,
		"localstack/localstack:latest",
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestIntegrationSync(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	endpoint := startLocalStack(t)

	backend, err := s3.New(ctx, "objsync-it",
		s3.WithRegion("us-east-1"),
		s3.WithEndpoint(endpoint),
		s3.WithPathStyle(true),
		s3.WithCredentials("test", "test", ""),
	)
	require.NoError(t, err)

	raw := awss3.NewFromConfig(aws.Config{
		Region:      "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) { return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil }),
	}, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	_, err = raw.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String("objsync-it")})
	require.NoError(t, err)

	root := t.TempDir()
	for name, content := range map[string]string{
		"index.html":    "<html>home</html>",
		"css/site.css":  "body{}",
		"img/logo.svg":  "<svg/>",
		"docs/a/b.html": "<p>b</p>",
	} {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	client, err := objsync.New(backend, objsync.WithLocalRoot(root), objsync.WithPrefix("www"))
	require.NoError(t, err)

	first, err := client.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Uploaded)
	assert.Equal(t, objtypes.StateDone, first.State)

	second, err := client.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Uploaded)
	assert.Equal(t, objtypes.StateUpToDate, second.State)

	ok, err := backend.Exists(ctx, "www/version.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	folders, err := client.ListFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"www/css/", "www/docs/", "www/img/"}, folders)
}
