package fsadapter

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/microocpp-go/engine/internal/interfaces"
)

// OS is a FileSystem backed by a directory on a real filesystem. Writes
// that set os.O_CREATE go through a temp-file-then-rename sequence so a
// power loss mid-write leaves either the old content or the new content,
// never a torn mix (§5 "tolerate torn writes" — a torn write is made to
// look like the file not existing yet rather than existing with garbage).
type OS struct {
	dir string
}

// NewOS creates an OS-backed FileSystem rooted at dir. dir must already
// exist.
func NewOS(dir string) *OS {
	return &OS{dir: dir}
}

func (fs *OS) path(name string) string {
	return filepath.Join(fs.dir, name)
}

// Open opens name. When flag includes os.O_CREATE, the returned File
// buffers writes to a temp file and only replaces name atomically on
// Close, via Rename, after an explicit Sync — the durability primitive
// golang.org/x/sys/unix provides that os.Rename alone doesn't guarantee
// ordering for.
func (fs *OS) Open(name string, flag int) (interfaces.File, error) {
	if flag&os.O_CREATE == 0 {
		f, err := os.OpenFile(fs.path(name), flag, 0o644)
		if err != nil {
			return nil, err
		}
		return &osFile{f: f}, nil
	}

	tmp, err := os.CreateTemp(fs.dir, ".tmp-*")
	if err != nil {
		return nil, err
	}
	return &osFile{f: tmp, finalPath: fs.path(name), tmpPath: tmp.Name(), atomic: true}, nil
}

func (fs *OS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(fs.path(name))
}

func (fs *OS) Remove(name string) error {
	err := os.Remove(fs.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fs *OS) Walk(prefix string, fn func(name string) error) error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

type osFile struct {
	f         *os.File
	finalPath string
	tmpPath   string
	atomic    bool
	closed    bool
}

func (f *osFile) Read(p []byte) (int, error)  { return f.f.Read(p) }
func (f *osFile) Write(p []byte) (int, error) { return f.f.Write(p) }
func (f *osFile) Seek(offset int64, whence int) (int64, error) {
	return f.f.Seek(offset, whence)
}

// Sync flushes file content to stable storage via unix.Fsync rather than
// os.File.Sync so the same primitive backs both this data fsync and the
// directory fsync Close performs after an atomic-create file's rename.
func (f *osFile) Sync() error {
	return unix.Fsync(int(f.f.Fd()))
}

// Close finalizes the write. For an atomic-create file this fsyncs the
// temp file's data, renames it over the target, then fsyncs the
// containing directory so the rename itself is durable — without the
// directory fsync, a crash right after rename can forget the rename ever
// happened on some filesystems.
func (f *osFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if !f.atomic {
		return f.f.Close()
	}

	if err := unix.Fsync(int(f.f.Fd())); err != nil {
		f.f.Close()
		os.Remove(f.tmpPath)
		return err
	}
	if err := f.f.Close(); err != nil {
		os.Remove(f.tmpPath)
		return err
	}
	if err := os.Rename(f.tmpPath, f.finalPath); err != nil {
		os.Remove(f.tmpPath)
		return err
	}
	dir, err := os.Open(filepath.Dir(f.finalPath))
	if err != nil {
		return err
	}
	defer dir.Close()
	return unix.Fsync(int(dir.Fd()))
}

var _ interfaces.FileSystem = (*OS)(nil)
