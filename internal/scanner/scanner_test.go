package scanner

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	skip2 "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qrImage(t *testing.T, text string, size int) image.Image {
	t.Helper()
	q, err := skip2.New(text, skip2.High)
	require.NoError(t, err)
	return q.Image(size)
}

func receive(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		require.True(t, ok, "frame channel closed")
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestQRDecoder_ImageFrames(t *testing.T) {
	dec := NewQRDecoder()

	for _, size := range []int{200, 400} {
		text, err := dec.Decode(Frame{Seq: 1, Image: qrImage(t, "NJOY-0001", size)})
		require.NoError(t, err)
		assert.Equal(t, "NJOY-0001", text)
	}

	legacy := `{"codigo":"NJOY-0002"}`
	text, err := dec.Decode(Frame{Seq: 2, Image: qrImage(t, legacy, 300)})
	require.NoError(t, err)
	assert.Equal(t, legacy, text)
}

func TestQRDecoder_NoSymbol(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 120, 120))
	_, err := NewQRDecoder().Decode(Frame{Seq: 3, Image: blank})
	assert.Error(t, err)
}

func TestQRDecoder_TextFrames(t *testing.T) {
	dec := NewQRDecoder()

	text, err := dec.Decode(Frame{Text: "NJOY-0001"})
	require.NoError(t, err)
	assert.Equal(t, "NJOY-0001", text)

	_, err = dec.Decode(Frame{})
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestLineSource(t *testing.T) {
	src := NewLineSource(strings.NewReader("NJOY-0001\n\n  NJOY-0002  \n"))

	frames, err := src.Start(context.Background())
	require.NoError(t, err)

	first := receive(t, frames)
	second := receive(t, frames)
	assert.Equal(t, "NJOY-0001", first.Text)
	assert.Equal(t, "NJOY-0002", second.Text)
	assert.Less(t, first.Seq, second.Seq)

	_, ok := <-frames
	assert.False(t, ok)

	_, err = src.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.NoError(t, src.Stop())
	assert.NoError(t, src.Stop())
}

func TestLineSource_BlankLines(t *testing.T) {
	var blanks atomic.Int32
	src := NewLineSource(strings.NewReader("NJOY-0001\n\n   \nNJOY-0002\n"))
	src.OnBlank = func() { blanks.Add(1) }

	frames, err := src.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "NJOY-0001", receive(t, frames).Text)
	assert.Equal(t, "NJOY-0002", receive(t, frames).Text)
	assert.Equal(t, int32(2), blanks.Load())
}

func writePNG(t *testing.T, dir, name, text string) {
	t.Helper()
	q, err := skip2.New(text, skip2.High)
	require.NoError(t, err)
	staging := filepath.Join(t.TempDir(), name)
	require.NoError(t, q.WriteFile(300, staging))
	require.NoError(t, os.Rename(staging, filepath.Join(dir, name)))
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", "NJOY-0001")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

	src := NewDirectorySource(dir)
	frames, err := src.Start(context.Background())
	require.NoError(t, err)

	dec := NewQRDecoder()
	first := receive(t, frames)
	text, err := dec.Decode(first)
	require.NoError(t, err)
	assert.Equal(t, "NJOY-0001", text)

	writePNG(t, dir, "b.png", "NJOY-0002")
	second := receive(t, frames)
	text, err = dec.Decode(second)
	require.NoError(t, err)
	assert.Equal(t, "NJOY-0002", text)
	assert.Greater(t, second.Seq, first.Seq)

	require.NoError(t, src.Stop())
	_, ok := <-frames
	assert.False(t, ok, "Stop must release the source before returning")
	assert.NoError(t, src.Stop())
}

func TestDirectorySource_MissingDir(t *testing.T) {
	src := NewDirectorySource(filepath.Join(t.TempDir(), "nope"))
	_, err := src.Start(context.Background())
	assert.Error(t, err)
}
