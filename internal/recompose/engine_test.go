package recompose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDoc struct {
	name  string
	pages int
}

func (d fakeDoc) Name() string   { return d.name }
func (d fakeDoc) PageCount() int { return d.pages }
func (d fakeDoc) PageNumbers() []int {
	out := make([]int, d.pages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

type fakeCodec struct {
	failBytes  bool
	failPage   int
	failSource string
	delay      func(page int) time.Duration
	inflight   atomic.Int32
	maxSeen    atomic.Int32
	pagesByDoc map[string]int
}

func (c *fakeCodec) Parse(name string, data []byte) (Document, error) {
	n, ok := c.pagesByDoc[name]
	if !ok {
		return nil, errors.New("cannot parse")
	}
	return fakeDoc{name: name, pages: n}, nil
}

func (c *fakeCodec) NewDestination() Destination { return &fakeDest{codec: c} }

type fakeDest struct {
	codec *fakeCodec
	pages []string
}

func (d *fakeDest) Append(doc Document, pages []int) error {
	for _, p := range pages {
		d.pages = append(d.pages, fmt.Sprintf("%s#%d", doc.Name(), p))
	}
	return nil
}

func (d *fakeDest) PageCount() int { return len(d.pages) }

func (d *fakeDest) Bytes() ([]byte, error) {
	n := d.codec.inflight.Add(1)
	defer d.codec.inflight.Add(-1)
	for {
		seen := d.codec.maxSeen.Load()
		if n <= seen || d.codec.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if d.codec.delay != nil && len(d.pages) == 1 {
		var page int
		fmt.Sscanf(d.pages[0][len(d.pages[0])-1:], "%d", &page)
		time.Sleep(d.codec.delay(page))
	}
	if d.codec.failBytes {
		return nil, errors.New("disk full")
	}
	if d.codec.failSource != "" {
		return nil, &SourceError{Source: d.codec.failSource, Err: errors.New("page tree is broken")}
	}
	if d.codec.failPage > 0 && len(d.pages) == 1 && d.pages[0] == fmt.Sprintf("c.pdf#%d", d.codec.failPage) {
		return nil, errors.New("bad page")
	}
	return []byte(fmt.Sprint(d.pages)), nil
}

type fakePacker struct {
	mu      sync.Mutex
	names   []string
	failAdd bool
}

func (p *fakePacker) Add(name string, data []byte) error {
	if p.failAdd {
		return errors.New("no space")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	return nil
}

func (p *fakePacker) Finalize() ([]byte, error) { return []byte("zip"), nil }

func TestMergeSerializationFailure(t *testing.T) {
	codec := &fakeCodec{failBytes: true, pagesByDoc: map[string]int{"a.pdf": 1, "b.pdf": 1}}
	e := New(codec, func() Packer { return &fakePacker{} }, Options{})

	res, err := e.Merge(context.Background(), []Source{{Name: "a.pdf"}, {Name: "b.pdf"}})
	require.ErrorIs(t, err, ErrSerializationFailure)
	assert.Equal(t, "Failed to write the merged document.", UserMessage(err))
	assert.Nil(t, res.Data)
}

func TestMergeCopyFailureNamesSource(t *testing.T) {
	codec := &fakeCodec{failSource: "b.pdf", pagesByDoc: map[string]int{"a.pdf": 1, "b.pdf": 2}}
	e := New(codec, func() Packer { return &fakePacker{} }, Options{})

	res, err := e.Merge(context.Background(), []Source{{Name: "a.pdf"}, {Name: "b.pdf"}})
	require.ErrorIs(t, err, ErrUnreadableSource)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b.pdf", re.Source)
	assert.Contains(t, UserMessage(err), `"b.pdf"`)
	assert.Nil(t, res.Data)
}

func TestSplitPageFailureDiscardsArchive(t *testing.T) {
	codec := &fakeCodec{failPage: 3, pagesByDoc: map[string]int{"c.pdf": 5}}
	packer := &fakePacker{}
	e := New(codec, func() Packer { return packer }, Options{})

	res, err := e.Split(context.Background(), Source{Name: "c.pdf"})
	require.ErrorIs(t, err, ErrSerializationFailure)
	assert.Contains(t, err.Error(), "page_3.pdf")
	assert.Nil(t, res.Data)
	assert.Empty(t, packer.names, "nothing is packed after a failure")
}

func TestSplitArchiveFailure(t *testing.T) {
	codec := &fakeCodec{pagesByDoc: map[string]int{"c.pdf": 2}}
	e := New(codec, func() Packer { return &fakePacker{failAdd: true} }, Options{})

	_, err := e.Split(context.Background(), Source{Name: "c.pdf"})
	require.ErrorIs(t, err, ErrSerializationFailure)
	assert.Equal(t, "Failed to build the archive.", UserMessage(err))
}

func TestSplitOrderIndependentOfCompletion(t *testing.T) {
	// Later pages finish first.
	codec := &fakeCodec{
		pagesByDoc: map[string]int{"c.pdf": 6},
		delay:      func(page int) time.Duration { return time.Duration(7-page) * 5 * time.Millisecond },
	}
	packer := &fakePacker{}
	e := New(codec, func() Packer { return packer }, Options{SplitConcurrency: 6})

	res, err := e.Split(context.Background(), Source{Name: "c.pdf"})
	require.NoError(t, err)
	want := []string{"page_1.pdf", "page_2.pdf", "page_3.pdf", "page_4.pdf", "page_5.pdf", "page_6.pdf"}
	assert.Equal(t, want, res.Entries)
	assert.Equal(t, want, packer.names)
}

func TestSplitConcurrencyBounded(t *testing.T) {
	codec := &fakeCodec{
		pagesByDoc: map[string]int{"c.pdf": 9},
		delay:      func(int) time.Duration { return 10 * time.Millisecond },
	}
	e := New(codec, func() Packer { return &fakePacker{} }, Options{SplitConcurrency: 2})

	_, err := e.Split(context.Background(), Source{Name: "c.pdf"})
	require.NoError(t, err)
	assert.LessOrEqual(t, codec.maxSeen.Load(), int32(2))
}

func TestNewDefaults(t *testing.T) {
	e := New(&fakeCodec{}, nil, Options{})
	assert.Equal(t, 2, e.MinMergeSources())
	assert.Equal(t, 4, e.opts.SplitConcurrency)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "report", baseName("dir/report.pdf"))
	assert.Equal(t, "report", baseName(`C:\docs\report.pdf`))
	assert.Equal(t, "document", baseName(""))
	assert.Equal(t, "a_b", baseName("a|b.pdf"))
}
