/*
Copyright © 2026 the Reanest authors.
This file is part of Reanest.

Reanest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Reanest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Reanest.  If not, see <http://www.gnu.org/licenses/>.
*/

package reanest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractGridded resolves a downloaded file to the gridded data files it
// contains. A bare NetCDF file resolves to itself; a zip archive is
// unpacked next to itself and resolves to the NetCDF files inside it,
// searched recursively. Anything else is an error.
func ExtractGridded(path string) ([]string, error) {
	if isNetCDF(path) {
		return []string{path}, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return extractZip(path)
	}
	// CDS serves archives without an extension sometimes; sniff the
	// magic bytes before giving up.
	magic := make([]byte, 4)
	ff, err := os.Open(path)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "open", Err: err}
	}
	n, _ := io.ReadFull(ff, magic)
	ff.Close()
	if n >= 3 && string(magic[:3]) == "CDF" {
		return []string{path}, nil
	}
	if n == 4 && string(magic) == "PK\x03\x04" {
		return extractZip(path)
	}
	return nil, &ProcessingError{Path: path, Op: "extract",
		Err: fmt.Errorf("not a NetCDF file or zip archive")}
}

func isNetCDF(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".nc" || ext == ".nc4" || ext == ".netcdf"
}

func extractZip(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "extract", Err: err}
	}
	defer zr.Close()

	dir := strings.TrimSuffix(path, filepath.Ext(path)) + "_extracted"
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, &ProcessingError{Path: path, Op: "extract", Err: err}
	}
	var files []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		// Flatten the archive layout; only the data files matter.
		dst := filepath.Join(dir, filepath.Base(zf.Name))
		if err := extractZipFile(zf, dst); err != nil {
			return nil, &ProcessingError{Path: path, Op: "extract",
				Err: fmt.Errorf("unpacking %s: %v", zf.Name, err)}
		}
		if isNetCDF(dst) {
			files = append(files, dst)
		}
	}
	if len(files) == 0 {
		return nil, &ProcessingError{Path: path, Op: "extract",
			Err: fmt.Errorf("archive contains no NetCDF files")}
	}
	return files, nil
}

func extractZipFile(zf *zip.File, dst string) error {
	r, err := zf.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
