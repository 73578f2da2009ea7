package stores

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// LocalImageStore implements ImageStore backed by local file system. Images are expected to be served
// from Dir under cst.ImageURLPrefix
type LocalImageStore struct {
	Dir string
}

// path returns the location of image ref on disk; refs escaping Dir are rejected
func (fs *LocalImageStore) path(ref string) (string, bool) {
	p := filepath.Join(fs.Dir, filepath.FromSlash(ref))
	rel, err := filepath.Rel(fs.Dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p, false
	}
	return p, true
}

func (fs *LocalImageStore) Save(ctx context.Context, up *Upload) (md.Image, *se.Err) {
	const errMsg = "error allocating image storage space"
	ref := NewImageKey(up.Filename)
	clog := logging.WithFuncName().WithField("ref", ref)
	// 1. prepare file to host data
	p, _ := fs.path(ref)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		clog.WithError(err).Error(errMsg)
		return md.Image{}, se.NewUploadFailed().WithCause(err)
	}
	f, err := os.Create(p)
	if err != nil {
		clog.WithError(err).Error(errMsg)
		return md.Image{}, se.NewUploadFailed().WithCause(err)
	}
	defer f.Close()
	// 2. pipe data to file
	if _, err := bufio.NewReader(up.Body).WriteTo(f); err != nil {
		clog.WithError(err).Error("error saving image data")
		os.Remove(p)
		return md.Image{}, se.NewUploadFailed().WithCause(err)
	}
	return md.Image{ID: ref, URL: path.Join(cst.ImageURLPrefix, ref)}, nil
}

func (fs *LocalImageStore) Delete(ctx context.Context, ref string) *se.Err {
	if ref == "" {
		return nil
	}
	p, ok := fs.path(ref)
	if !ok {
		return se.NewBadInput("invalid image reference")
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		logging.WithFuncName().WithError(err).WithField("ref", ref).Error("error removing image")
		return se.NewServiceFailure("error removing pin image").WithCause(err)
	}
	return nil
}

func (fs *LocalImageStore) Close() *se.Err {
	return nil
}
