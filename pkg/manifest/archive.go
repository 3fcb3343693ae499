package manifest

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// writeArchive zips every regular file under the output directory except the archive itself.
// Entry names are slash-separated paths relative to the output directory.
func (w *Writer) writeArchive() (err error) {
	archivePath := w.path(ArchiveFile)
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", utils.ErrFilesystem, cerr)
		}
	}()

	zw := zip.NewWriter(out)
	added := 0
	walkErr := filepath.WalkDir(w.outputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(w.outputDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ArchiveFile {
			return nil
		}
		if err := addToArchive(zw, p, rel, d); err != nil {
			return err
		}
		added++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return fmt.Errorf("%w: archiving '%s': %w", utils.ErrFilesystem, w.outputDir, walkErr)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finalizing archive: %w", utils.ErrFilesystem, err)
	}
	w.log.Infof("Archived %d file(s) into %s", added, archivePath)
	return nil
}

func addToArchive(zw *zip.Writer, srcPath, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}
