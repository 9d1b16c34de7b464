package s3

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/pkg/provider"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeS3 is an in-memory bucket implementing the api interface.
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	calls     []string
	lastPut   *s3.PutObjectInput
	listPages int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) seed(key, contentType, data string) {
	f.objects[key] = fakeObject{
		data:        []byte(data),
		contentType: contentType,
		modified:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (f *fakeS3) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetObject")
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(string(obj.data))),
		ContentType: aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("HeadObject")
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PutObject")
	f.lastPut = in
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, contentType: aws.ToString(in.ContentType), modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObject")
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObjects")
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// ListObjectsV2 honors Prefix, Delimiter and MaxKeys. The continuation token
// is the index of the next key.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListObjectsV2")
	f.listPages++

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	maxKeys := int(aws.ToInt32(in.MaxKeys))

	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	i := start
	for ; i < len(keys) && len(out.Contents)+len(out.CommonPrefixes) < maxKeys; i++ {
		k := keys[i]
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if idx := strings.Index(rest, delim); idx >= 0 {
				cp := prefix + rest[:idx+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	if i < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(i))
	}
	return out, nil
}

func (f *fakeS3) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestStore(t *testing.T, fake *fakeS3, mutate ...func(*Config)) *Provider {
	t.Helper()
	cfg := Config{Bucket: "test-bucket"}
	for _, fn := range mutate {
		fn(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return newWithClient(fake, cfg)
}

func TestStore_GetHas(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.seed("docs/readme.txt", "text/plain", "hello")
	p := newTestStore(t, fake)

	f, err := p.Get(ctx, "/docs/readme.txt")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "readme.txt", f.Name)
	assert.Equal(t, "text/plain", f.ContentType)
	assert.Equal(t, []byte("hello"), f.Data)

	missing, err := p.Get(ctx, "docs/missing.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := p.Has(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Has(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PutSendsChecksum(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	p := newTestStore(t, fake)

	in := &provider.File{Name: "a.bin", Data: []byte("payload")}
	out, err := p.Put(ctx, "/dir/a.bin", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NotNil(t, fake.lastPut)
	assert.Equal(t, "dir/a.bin", aws.ToString(fake.lastPut.Key))
	assert.Equal(t, "application/octet-stream", aws.ToString(fake.lastPut.ContentType))
	sum := sha256.Sum256([]byte("payload"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), aws.ToString(fake.lastPut.ChecksumSHA256))
	assert.Equal(t, types.ChecksumAlgorithmSha256, fake.lastPut.ChecksumAlgorithm)

	got, err := p.Get(ctx, "dir/a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Data)
}

func TestStore_PutWithoutChecksum(t *testing.T) {
	fake := newFakeS3()
	disabled := false
	p := newTestStore(t, fake, func(c *Config) { c.GenerateChecksums = &disabled })

	require.NoError(t, p.Set(context.Background(), "a.txt", &provider.File{ContentType: "text/plain", Data: []byte("x")}))
	assert.Nil(t, fake.lastPut.ChecksumSHA256)
	assert.Equal(t, "text/plain", aws.ToString(fake.lastPut.ContentType))
}

func TestStore_PutRejectsBadInput(t *testing.T) {
	fake := newFakeS3()
	p := newTestStore(t, fake)

	_, err := p.Put(context.Background(), "a.txt", nil)
	assert.Error(t, err)
	_, err = p.Put(context.Background(), "dir/", &provider.File{})
	assert.Error(t, err)
	assert.Empty(t, fake.Calls())
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.seed("logs/", "", "")
	fake.seed("logs/a.log", "", "a")
	fake.seed("logs/b.log", "", "bb")
	fake.seed("logs/c.json", "", "{}")
	fake.seed("logs/archive/old.log", "", "old")
	fake.seed("top.txt", "", "t")
	p := newTestStore(t, fake, func(c *Config) { c.MaxKeys = 2 })

	page, err := p.List(ctx, provider.ListOptions{Prefix: "logs"})
	require.NoError(t, err)
	keys := make([]string, 0, len(page.Files))
	for _, f := range page.Files {
		keys = append(keys, f.Key)
		assert.Nil(t, f.Metadata)
	}
	assert.Equal(t, []string{"/logs/a.log", "/logs/b.log", "/logs/c.json"}, keys)
	assert.Empty(t, page.Cursor)
	assert.Greater(t, fake.listPages, 1, "small MaxKeys drains several S3 pages")

	first, err := p.List(ctx, provider.ListOptions{Prefix: "/logs/", Limit: provider.Limit(2), IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, first.Files, 2)
	assert.Equal(t, "2", first.Cursor)
	md := first.Files[1].Metadata
	require.NotNil(t, md)
	assert.Equal(t, "b.log", md.Name)
	assert.Equal(t, int64(2), md.Size)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), md.LastModified)

	second, err := p.List(ctx, provider.ListOptions{Prefix: "/logs/", Limit: provider.Limit(2), Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Files, 1)
	assert.Equal(t, "/logs/c.json", second.Files[0].Key)
	assert.Empty(t, second.Cursor)

	root, err := p.List(ctx, provider.ListOptions{})
	require.NoError(t, err)
	require.Len(t, root.Files, 1)
	assert.Equal(t, "/top.txt", root.Files[0].Key)
}

func TestStore_ListValidatesBeforeCalling(t *testing.T) {
	fake := newFakeS3()
	p := newTestStore(t, fake)

	_, err := p.List(context.Background(), provider.ListOptions{Limit: provider.Limit(0)})
	assert.True(t, provider.IsInputValidation(err))
	_, err = p.List(context.Background(), provider.ListOptions{Cursor: "-1"})
	assert.True(t, provider.IsInputValidation(err))
	assert.Empty(t, fake.Calls())
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.seed("a.txt", "", "a")
	fake.seed("dir/b.txt", "", "b")
	fake.seed("dir/sub/c.txt", "", "c")
	fake.seed("other.txt", "", "o")
	p := newTestStore(t, fake)

	require.NoError(t, p.Remove(ctx, "/a.txt"))
	ok, err := p.Has(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	err = p.Remove(ctx, "a.txt")
	assert.True(t, provider.IsNotFound(err))

	require.NoError(t, p.Remove(ctx, "dir/"))
	assert.Len(t, fake.objects, 1)

	err = p.Remove(ctx, "dir/")
	assert.True(t, provider.IsNotFound(err))
}

func TestStore_RemoveRoot(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.seed("a.txt", "", "a")
	p := newTestStore(t, fake)

	for _, key := range []string{"", "/", "//"} {
		err := p.Remove(ctx, key)
		assert.True(t, provider.IsPreserveRoot(err), "key %q", key)
	}
	assert.Empty(t, fake.Calls(), "guard fires before any S3 call")

	disabled := false
	open := newTestStore(t, fake, func(c *Config) { c.PreserveRoot = &disabled })
	require.NoError(t, open.Remove(ctx, "/"))
	assert.Empty(t, fake.objects)
}
