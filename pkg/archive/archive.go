package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
)

// Format identifies a supported bundle archive format
type Format string

const (
	FormatTarGz Format = "tar.gz"
	FormatTar   Format = "tar"
	FormatZip   Format = "zip"
)

// Extractor unpacks application bundles and verifies them against a marker file
type Extractor struct {
	logger logging.Logger
}

// NewExtractor creates a bundle extractor
func NewExtractor(logger logging.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// DetectFormat determines the archive format from the file extension
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	default:
		return "", errors.NewArchiveError("unsupported archive format", nil).WithContext("path", path)
	}
}

// Extract unpacks the archive into destDir and verifies that markerFile
// exists afterwards. The marker confirms the archive was the expected
// application bundle.
func (e *Extractor) Extract(archivePath, destDir, markerFile string) error {
	if archivePath == "" {
		return errors.NewValidationError("archive path cannot be empty", nil)
	}

	if _, err := os.Stat(archivePath); err != nil {
		return errors.NewNotFoundError("archive does not exist", err).WithContext("archive", archivePath)
	}

	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.NewIOError("failed to create install directory", err).WithContext("directory", destDir)
	}

	e.logger.Infof("Extracting archive, path: %s, format: %s, destination: %s", archivePath, format, destDir)

	switch format {
	case FormatTarGz, FormatTar:
		err = e.extractTar(archivePath, destDir, format == FormatTarGz)
	case FormatZip:
		err = e.extractZip(archivePath, destDir)
	}
	if err != nil {
		return err
	}

	if markerFile != "" {
		markerPath := filepath.Join(destDir, markerFile)
		if _, err := os.Stat(markerPath); err != nil {
			return errors.NewArchiveError("marker file missing after extraction, wrong bundle?", err).
				WithContext("marker", markerFile).
				WithContext("directory", destDir)
		}
		e.logger.Debugf("Marker file verified, path: %s", markerPath)
	}

	e.logger.Infof("Archive extracted successfully, destination: %s", destDir)
	return nil
}

func (e *Extractor) extractTar(archivePath, destDir string, gzipped bool) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return errors.NewIOError("failed to open archive", err).WithContext("archive", archivePath)
	}
	defer file.Close()

	var reader io.Reader = file
	if gzipped {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return errors.NewArchiveError("failed to read gzip stream", err).WithContext("archive", archivePath)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.NewArchiveError("failed to read tar entry", err).WithContext("archive", archivePath)
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0700); err != nil {
				return errors.NewIOError("failed to create directory", err).WithContext("path", target)
			}
		case tar.TypeReg:
			if err := writeFile(target, tarReader, os.FileMode(header.Mode)); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not expected in application bundles
			e.logger.Warnf("Skipping unsupported tar entry, name: %s, type: %d", header.Name, header.Typeflag)
		}
	}

	return nil
}

func (e *Extractor) extractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.NewArchiveError("failed to open zip archive", err).WithContext("archive", archivePath)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target, err := securePath(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, entry.Mode()|0700); err != nil {
				return errors.NewIOError("failed to create directory", err).WithContext("path", target)
			}
			continue
		}

		src, err := entry.Open()
		if err != nil {
			return errors.NewArchiveError("failed to open zip entry", err).WithContext("entry", entry.Name)
		}
		err = writeFile(target, src, entry.Mode())
		src.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// securePath joins an archive entry name onto destDir, rejecting entries
// that would escape the destination (zip-slip)
func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return "", errors.NewArchiveError("archive entry escapes destination directory", nil).WithContext("entry", name)
	}
	return target, nil
}

func writeFile(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.NewIOError("failed to create parent directory", err).WithContext("path", target)
	}

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.NewIOError("failed to create file", err).WithContext("path", target)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.NewIOError("failed to write file content", err).WithContext("path", target)
	}

	return nil
}
