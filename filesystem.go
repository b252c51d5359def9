package davcloak

import (
	"context"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/webdav"
)

// NewFilesystem creates the anonymous WebDAV handler serving root below the mount path prefix.
// If readOnly is set, every modifying operation fails with a permission error
func NewFilesystem(root, prefix string, readOnly bool) http.Handler {
	var fs webdav.FileSystem = webdav.Dir(root)
	if readOnly {
		fs = readOnlyFS{fs}
	}

	return &webdav.Handler{
		Prefix:     strings.TrimRight(prefix, "/"),
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Warnf("webdav %s %s: %s", r.Method, r.URL.Path, err)
				return
			}
			log.Tracef("webdav %s %s", r.Method, r.URL.Path)
		},
	}
}

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

type readOnlyFS struct {
	webdav.FileSystem
}

func (fs readOnlyFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (fs readOnlyFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (fs readOnlyFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (fs readOnlyFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&writeFlags != 0 {
		return nil, os.ErrPermission
	}
	return fs.FileSystem.OpenFile(ctx, name, flag, perm)
}
