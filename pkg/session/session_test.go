package session

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pixelkit/bgremover/pkg/errors"
	"github.com/pixelkit/bgremover/pkg/remote"
	"github.com/pixelkit/bgremover/pkg/security"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nprocessed")

type call struct {
	op        string
	upload    remote.Upload
	thickness int
	color     string
}

// fakeProcessor records calls and answers from its configured funcs.
type fakeProcessor struct {
	mu     sync.Mutex
	calls  []call
	remove func(remote.Upload) ([]byte, error)
	border func(remote.Upload, int, string) ([]byte, error)
}

func (f *fakeProcessor) RemoveBackground(ctx context.Context, up remote.Upload) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "remove", upload: up})
	fn := f.remove
	f.mu.Unlock()
	if fn == nil {
		return pngBytes, nil
	}
	return fn(up)
}

func (f *fakeProcessor) AddBorder(ctx context.Context, up remote.Upload, thickness int, color string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "border", upload: up, thickness: thickness, color: color})
	fn := f.border
	f.mu.Unlock()
	if fn == nil {
		return append(append([]byte{}, up.Data...), []byte("+border")...), nil
	}
	return fn(up, thickness, color)
}

func (f *fakeProcessor) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type memorySaver struct {
	name      string
	mediaType string
	data      []byte
	err       error
}

func (m *memorySaver) Save(ctx context.Context, name, mediaType string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.name, m.mediaType, m.data = name, mediaType, data
	return "mem://" + name, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingNotifier) Notify(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func newTestSession(proc remote.Processor) (*Session, *recordingNotifier) {
	n := &recordingNotifier{}
	return New(proc, nil, n), n
}

func TestNew_Defaults(t *testing.T) {
	s, _ := newTestSession(&fakeProcessor{})

	snap := s.Snapshot()
	require.NotEmpty(t, snap.ID)
	require.Equal(t, StatusIdle, snap.Status)
	require.Equal(t, BorderSpec{Color: "#000000", Thickness: 5}, snap.Border)
	require.False(t, snap.HasProcessed())
}

func TestIngest_RejectsNonImage(t *testing.T) {
	proc := &fakeProcessor{}
	s, n := newTestSession(proc)

	for _, mt := range []string{"application/pdf", "text/plain", ""} {
		err := s.Ingest(context.Background(), NewMemoryFile("doc", mt, []byte("data")))
		require.ErrorIs(t, err, errors.ErrInvalidFileType)
	}

	require.Empty(t, proc.Calls())
	require.Equal(t, StatusIdle, s.Status())
	require.Empty(t, s.Snapshot().SourceRef)
	require.Len(t, n.errs, 3)
}

func TestIngest_RejectsTooLargeBeforeNetwork(t *testing.T) {
	proc := &fakeProcessor{}
	s, n := newTestSession(proc)

	big := make([]byte, 6*1024*1024)
	err := s.Ingest(context.Background(), NewMemoryFile("huge.png", "image/png", big))
	require.ErrorIs(t, err, errors.ErrFileTooLarge)

	require.Empty(t, proc.Calls())
	require.Equal(t, StatusIdle, s.Status())
	require.Len(t, n.errs, 1)
	require.Equal(t, "file size exceeds 5MB limit", Notice(n.errs[0]))
}

type lyingFile struct {
	File
}

func (lyingFile) Size() int64 { return 10 }

func TestIngest_RejectsFileLargerThanDeclared(t *testing.T) {
	proc := &fakeProcessor{}
	s, _ := newTestSession(proc)

	f := lyingFile{NewMemoryFile("a.png", "image/png", make([]byte, 5*1024*1024+1))}
	require.ErrorIs(t, s.Ingest(context.Background(), f), errors.ErrFileTooLarge)
	require.Empty(t, proc.Calls())
	require.Equal(t, StatusIdle, s.Status())
}

func TestIngest_NoticeNamesConfiguredLimit(t *testing.T) {
	proc := &fakeProcessor{}
	n := &recordingNotifier{}
	s := New(proc, security.NewValidator(2*1024*1024), n)

	err := s.Ingest(context.Background(), NewMemoryFile("a.png", "image/png", make([]byte, 3*1024*1024)))
	require.ErrorIs(t, err, errors.ErrFileTooLarge)
	require.Equal(t, "file size exceeds 2MB limit", Notice(n.errs[0]))

	err = s.Ingest(context.Background(), lyingFile{NewMemoryFile("b.png", "image/png", make([]byte, 2*1024*1024+1))})
	require.ErrorIs(t, err, errors.ErrFileTooLarge)
	require.Equal(t, "file size exceeds 2MB limit", Notice(n.errs[1]))
	require.Empty(t, proc.Calls())
}

func TestIngest_SuccessfulRemoval(t *testing.T) {
	proc := &fakeProcessor{}
	s, n := newTestSession(proc)

	jpeg := bytes.Repeat([]byte{0xff}, 2*1024*1024)
	require.NoError(t, s.Ingest(context.Background(), NewMemoryFile("photo.jpg", "image/jpeg", jpeg)))

	calls := proc.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "remove", calls[0].op)
	require.Equal(t, "photo.jpg", calls[0].upload.Filename)
	require.Equal(t, "image/jpeg", calls[0].upload.MediaType)
	require.Equal(t, jpeg, calls[0].upload.Data)

	snap := s.Snapshot()
	require.Equal(t, StatusReady, snap.Status)
	require.Equal(t, "photo.jpg", snap.SourceName)
	require.True(t, snap.HasProcessed())
	require.Empty(t, n.errs)

	blob, ok := s.Lookup(snap.ProcessedRef)
	require.True(t, ok)
	require.Equal(t, "image/png", blob.MediaType)
	require.Equal(t, pngBytes, blob.Data)

	saver := &memorySaver{}
	loc, err := s.Download(context.Background(), saver)
	require.NoError(t, err)
	require.Equal(t, "mem://processed-image.png", loc)
	require.Equal(t, DownloadFilename, saver.name)
	require.Equal(t, pngBytes, saver.data)
}

func TestIngest_StatusProcessingWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	proc := &fakeProcessor{remove: func(remote.Upload) ([]byte, error) {
		close(started)
		<-release
		return pngBytes, nil
	}}
	s, _ := newTestSession(proc)

	done := make(chan error, 1)
	go func() {
		done <- s.Ingest(context.Background(), NewMemoryFile("a.png", "image/png", []byte("a")))
	}()

	<-started
	require.Equal(t, StatusProcessing, s.Status())
	require.NotEmpty(t, s.Snapshot().SourceRef)
	close(release)

	require.NoError(t, <-done)
	require.Equal(t, StatusReady, s.Status())
}

func TestIngest_RemovalFailure(t *testing.T) {
	proc := &fakeProcessor{remove: func(remote.Upload) ([]byte, error) {
		return nil, &remote.StatusError{Endpoint: remote.RemoveBackgroundPath, StatusCode: 500}
	}}
	s, n := newTestSession(proc)

	err := s.Ingest(context.Background(), NewMemoryFile("a.png", "image/png", []byte("a")))
	require.ErrorIs(t, err, errors.ErrRemoteRemoval)

	var se *remote.StatusError
	require.True(t, stderrors.As(err, &se))

	snap := s.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "a.png", snap.SourceName)
	require.False(t, snap.HasProcessed())
	require.Len(t, n.errs, 1)
	require.Equal(t, "failed to remove background", Notice(n.errs[0]))

	saver := &memorySaver{}
	loc, err := s.Download(context.Background(), saver)
	require.NoError(t, err)
	require.Empty(t, loc)
	require.Nil(t, saver.data)
}

func TestIngest_NewSourceInvalidatesProcessed(t *testing.T) {
	s, _ := newTestSession(&fakeProcessor{})
	ctx := context.Background()

	require.NoError(t, s.Ingest(ctx, NewMemoryFile("a.png", "image/png", []byte("a"))))
	first := s.Snapshot()

	require.NoError(t, s.Ingest(ctx, NewMemoryFile("b.png", "image/png", []byte("b"))))
	second := s.Snapshot()

	require.NotEqual(t, first.ProcessedRef, second.ProcessedRef)
	_, ok := s.Lookup(first.ProcessedRef)
	require.False(t, ok)
	_, ok = s.Lookup(first.SourceRef)
	require.False(t, ok)
	require.Equal(t, 2, s.refs.Len())
}

func TestIngest_StaleRemovalDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	proc := &fakeProcessor{remove: func(up remote.Upload) ([]byte, error) {
		if up.Filename == "old.png" {
			close(firstStarted)
			<-releaseFirst
			return []byte("old-result"), nil
		}
		return []byte("new-result"), nil
	}}
	s, _ := newTestSession(proc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- s.Ingest(ctx, NewMemoryFile("old.png", "image/png", []byte("old")))
	}()
	<-firstStarted

	require.NoError(t, s.Ingest(ctx, NewMemoryFile("new.png", "image/png", []byte("new"))))
	close(releaseFirst)
	require.ErrorIs(t, <-done, ErrSuperseded)

	snap := s.Snapshot()
	require.Equal(t, "new.png", snap.SourceName)
	blob, ok := s.Lookup(snap.ProcessedRef)
	require.True(t, ok)
	require.Equal(t, []byte("new-result"), blob.Data)
	require.Equal(t, StatusReady, snap.Status)
}

func TestApplyBorder_NoProcessedIsNoop(t *testing.T) {
	proc := &fakeProcessor{}
	s, n := newTestSession(proc)

	require.NoError(t, s.ApplyBorder(context.Background()))
	require.Empty(t, proc.Calls())
	require.Equal(t, StatusIdle, s.Status())
	require.Empty(t, n.errs)
}

func TestApplyBorder_Composes(t *testing.T) {
	proc := &fakeProcessor{}
	s, _ := newTestSession(proc)
	ctx := context.Background()

	require.NoError(t, s.Ingest(ctx, NewMemoryFile("a.png", "image/png", []byte("a"))))
	require.True(t, s.SetBorderThickness(10))
	require.True(t, s.SetBorderColor("#FF0000", false))

	require.NoError(t, s.ApplyBorder(ctx))
	first := s.Snapshot()
	blob, _ := s.Lookup(first.ProcessedRef)
	require.Equal(t, append(append([]byte{}, pngBytes...), []byte("+border")...), blob.Data)

	require.NoError(t, s.ApplyBorder(ctx))
	second := s.Snapshot()
	blob, _ = s.Lookup(second.ProcessedRef)
	require.Equal(t, append(append([]byte{}, pngBytes...), []byte("+border+border")...), blob.Data)

	calls := proc.Calls()
	require.Len(t, calls, 3)
	require.Equal(t, "border", calls[1].op)
	require.Equal(t, 10, calls[1].thickness)
	require.Equal(t, "#FF0000", calls[1].color)
	require.Equal(t, "a.png", calls[1].upload.Filename)
	require.Equal(t, pngBytes, calls[1].upload.Data)

	_, ok := s.Lookup(first.ProcessedRef)
	require.False(t, ok, "superseded reference must be released")
	require.Equal(t, StatusReady, second.Status)
}

func TestApplyBorder_FailureKeepsPrevious(t *testing.T) {
	proc := &fakeProcessor{border: func(remote.Upload, int, string) ([]byte, error) {
		return nil, &remote.StatusError{Endpoint: remote.AddBorderPath, StatusCode: 500}
	}}
	s, n := newTestSession(proc)
	ctx := context.Background()

	require.NoError(t, s.Ingest(ctx, NewMemoryFile("a.png", "image/png", []byte("a"))))
	before := s.Snapshot()

	require.ErrorIs(t, s.ApplyBorder(ctx), errors.ErrRemoteBorder)

	after := s.Snapshot()
	require.Equal(t, StatusReady, after.Status)
	require.Equal(t, before.ProcessedRef, after.ProcessedRef)
	blob, ok := s.Lookup(after.ProcessedRef)
	require.True(t, ok)
	require.Equal(t, pngBytes, blob.Data)
	require.Len(t, n.errs, 1)
	require.Equal(t, "failed to add border", Notice(n.errs[0]))
}

func TestSetBorderColor(t *testing.T) {
	s, _ := newTestSession(&fakeProcessor{})

	require.True(t, s.SetBorderColor("#ff00aa", false))
	require.Equal(t, "#ff00aa", s.Border().Color)

	for _, bad := range []string{"#FFF", "red", "#GGGGGG", "FF0000", "#FF00001"} {
		require.False(t, s.SetBorderColor(bad, false), bad)
		require.Equal(t, "#ff00aa", s.Border().Color)
	}

	require.True(t, s.SetBorderColor("#123abc", true))
	require.Equal(t, "#123abc", s.Border().Color)
}

func TestSetBorderThickness(t *testing.T) {
	s, _ := newTestSession(&fakeProcessor{})

	for _, n := range []int{1, 7, 20} {
		require.True(t, s.SetBorderThickness(n))
		require.Equal(t, n, s.Border().Thickness)
	}
	for _, n := range []int{0, -1, 21, 100} {
		require.False(t, s.SetBorderThickness(n))
		require.Equal(t, 20, s.Border().Thickness)
	}
}

func TestRemoveBackground_Rerun(t *testing.T) {
	fail := true
	proc := &fakeProcessor{remove: func(remote.Upload) ([]byte, error) {
		if fail {
			return nil, io.ErrUnexpectedEOF
		}
		return pngBytes, nil
	}}
	s, _ := newTestSession(proc)
	ctx := context.Background()

	require.NoError(t, s.RemoveBackground(ctx))
	require.Empty(t, proc.Calls())

	require.Error(t, s.Ingest(ctx, NewMemoryFile("a.png", "image/png", []byte("a"))))
	require.Equal(t, StatusError, s.Status())

	fail = false
	require.NoError(t, s.RemoveBackground(ctx))
	require.Equal(t, StatusReady, s.Status())
	require.Len(t, proc.Calls(), 2)
}

func TestDownload_SaverError(t *testing.T) {
	s, _ := newTestSession(&fakeProcessor{})
	ctx := context.Background()
	require.NoError(t, s.Ingest(ctx, NewMemoryFile("a.png", "image/png", []byte("a"))))

	_, err := s.Download(ctx, &memorySaver{err: io.ErrShortWrite})
	require.ErrorIs(t, err, io.ErrShortWrite)
	require.Equal(t, StatusReady, s.Status())
}

func TestClose_ReleasesRefs(t *testing.T) {
	s, _ := newTestSession(&fakeProcessor{})
	require.NoError(t, s.Ingest(context.Background(), NewMemoryFile("a.png", "image/png", []byte("a"))))
	require.Equal(t, 2, s.refs.Len())

	s.Close()
	require.Equal(t, 0, s.refs.Len())
	require.Equal(t, StatusIdle, s.Status())
	require.False(t, s.Snapshot().HasProcessed())
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "idle", StatusIdle.String())
	require.Equal(t, "processing", StatusProcessing.String())
	require.Equal(t, "ready", StatusReady.String())
	require.Equal(t, "error", StatusError.String())
	require.Equal(t, "status(9)", Status(9).String())
}
