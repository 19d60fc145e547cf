package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/vqcodec"
	"github.com/hupe1980/vqcodec/blobstore"
	vqs3 "github.com/hupe1980/vqcodec/blobstore/s3"
	"github.com/hupe1980/vqcodec/catalog"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/corpus"
	"github.com/hupe1980/vqcodec/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCorpus creates root/<category>/img_<i>.png for every category.
func writeCorpus(t *testing.T, root string, categories []string, n int) {
	t.Helper()
	rng := testutil.NewRNG(7)
	for _, cat := range categories {
		for i := range n {
			name := filepath.Join(root, cat, fmt.Sprintf("img_%d.png", i))
			require.NoError(t, corpus.WritePNG(name, rng.Noise(9, 7)))
		}
	}
}

func benchArgs(t *testing.T, extra ...string) []string {
	t.Helper()
	dir := t.TempDir()
	cats := []string{"nature", "faces"}
	writeCorpus(t, filepath.Join(dir, "training"), cats, 2)
	writeCorpus(t, filepath.Join(dir, "testing"), cats, 1)
	return append([]string{
		"-train", filepath.Join(dir, "training"),
		"-test", filepath.Join(dir, "testing"),
		"-categories", "nature, faces",
		"-train-limit", "2",
		"-test-limit", "1",
		"-k", "16",
	}, extra...)
}

func TestRun_Direct(t *testing.T) {
	outDir := t.TempDir()
	storeDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), benchArgs(t, "-out", outDir, "-store", storeDir), &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Image 0 MSE: ")
	assert.Contains(t, out, "Image 1 MSE: ")
	assert.Contains(t, out, "Average MSE: ")
	assert.Contains(t, out, "Compression ratio: 8\n", "K=16 uses 4 bits per 4 samples")

	for _, name := range []string{"original_0.png", "reconstructed_0.png", "original_1.png", "reconstructed_1.png"} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	cat, err := catalog.New(context.Background(), blobstore.NewLocalStore(storeDir))
	require.NoError(t, err)
	require.Len(t, cat.Sets(), 1)
	images := cat.Images()
	require.Len(t, images, 2)
	assert.Equal(t, "faces/img_0", images[0].Name)
	assert.Equal(t, "nature/img_0", images[1].Name)
	assert.Equal(t, colorspace.KindDirect, images[0].Pipeline)
}

func TestRun_LumaChromaInMemory(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), benchArgs(t, "-pipeline", "luma-chroma", "-store", "mem://", "-compression", "lz4", "-log-format", "json", "-v"), &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	assert.Contains(t, stdout.String(), "Average MSE: ")
	assert.Contains(t, stderr.String(), `"msg":"codebook set trained"`)
}

func TestRun_ConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "codec.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pipeline: luma-chroma\ncodebook_size: 4\n"), 0o600))

	var stdout, stderr bytes.Buffer
	args := benchArgs(t, "-config", cfgPath)
	// benchArgs sets -k explicitly, which overrides the file.
	err := run(context.Background(), args, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "Compression ratio: 16\n")
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"MissingCategory", benchArgs(t, "-categories", "nature,animals"), corpus.ErrNotEnoughImages},
		{"ShortCategory", benchArgs(t, "-train-limit", "3"), vqcodec.ErrMissingInput},
		{"BadPipeline", benchArgs(t, "-pipeline", "cmyk"), vqcodec.ErrInvalidConfig},
		{"BadBlock", benchArgs(t, "-block", "0"), vqcodec.ErrInvalidConfig},
		{"NegativeTrainLimit", benchArgs(t, "-train-limit", "-1"), corpus.ErrInvalidLimit},
		{"NegativeTestLimit", benchArgs(t, "-test-limit", "-2"), vqcodec.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(ctx, tt.args, &stdout, &stderr)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var stderr bytes.Buffer
	err := run(ctx, []string{"-compression", "brotli"}, &bytes.Buffer{}, &stderr)
	assert.Error(t, err)

	err = run(ctx, []string{"-no-such-flag"}, &bytes.Buffer{}, &stderr)
	assert.Error(t, err)
	assert.True(t, strings.Contains(stderr.String(), "flag provided but not defined"))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, committer, err := openStore(ctx, "mem://", 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, s)
	assert.Nil(t, committer)

	s, _, err = openStore(ctx, dir, 0, nil)
	require.NoError(t, err)
	require.IsType(t, &blobstore.LocalStore{}, s)
	assert.Equal(t, dir, s.(*blobstore.LocalStore).Root())

	s, _, err = openStore(ctx, "file://"+filepath.ToSlash(dir), 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	_, _, err = openStore(ctx, "gs://bucket", 0, nil)
	assert.Error(t, err)

	_, _, err = openStore(ctx, "minio://localhost:9000/", 0, nil)
	assert.Error(t, err)

	s, committer, err = openStore(ctx, "minio://localhost:9000/bucket/prefix?secure=false", 1<<20, nil)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.CachingStore{}, s)
	assert.Nil(t, committer)

	s, committer, err = openStore(ctx, "s3://bucket/catalog?region=eu-west-1&ddb_table=commits", 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &vqs3.Store{}, s)
	assert.IsType(t, &vqs3.DDBCommitter{}, committer)
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "nature/img_0", artifactName("nature/img_0.png"))
	assert.Equal(t, "a.b/c", artifactName("a.b/c.jpeg"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a,,b "))
}
