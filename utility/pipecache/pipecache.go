// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pipecache persists driver pipeline cache blobs between runs.
// A file holds a magic, the size of a gob encoded header and the header,
// followed by the blob as a single lz4 frame. The header identifies the
// device and driver the blob was produced by, a blob from any other
// device is rejected on load.
package pipecache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a pipeline cache file")
	ErrStale      = errors.New("pipeline cache belongs to another device or driver")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 8
)

var magic = [MagicLength]byte{'K', 'P', 'C', '\x00'}

// Header identifies the producer of a pipeline cache blob.
type Header struct {
	VendorID      uint32
	DeviceID      uint32
	DriverVersion uint32
	// Size of the uncompressed blob
	Size int64
	// Created is a unix timestamp
	Created int64
}

// Matches reports whether h and other were produced by the same device and driver.
func (h Header) Matches(other Header) bool {
	return h.VendorID == other.VendorID &&
		h.DeviceID == other.DeviceID &&
		h.DriverVersion == other.DriverVersion
}

// Encode writes data under header h to w.
func Encode(w io.Writer, h Header, data []byte) error {
	h.Size = int64(len(data))

	var rawHeader bytes.Buffer
	if err := gob.NewEncoder(&rawHeader).Encode(h); err != nil {
		return err
	}

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int64(rawHeader.Len())); err != nil {
		return err
	}
	if _, err := rawHeader.WriteTo(w); err != nil {
		return err
	}

	zw := lz4.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	return zw.Close()
}

// Decode reads a blob of size bytes from r and checks it was produced by
// the device described by want.
func Decode(r io.ReaderAt, size int64, want Header) ([]byte, error) {
	prefix := make([]byte, MagicLength+HeaderSizeNumberLength)
	if n, err := r.ReadAt(prefix, 0); n < len(prefix) {
		if err == nil || err == io.EOF {
			err = ErrFileFormat
		}
		return nil, err
	}
	if !bytes.Equal(prefix[:MagicLength], magic[:]) {
		return nil, ErrFileFormat
	}

	var headerSize int64
	if err := binary.Read(bytes.NewReader(prefix[MagicLength:]), binary.LittleEndian, &headerSize); err != nil {
		return nil, ErrFileFormat
	}
	offset := int64(len(prefix))
	if headerSize <= 0 || offset+headerSize > size {
		return nil, ErrFileFormat
	}

	var h Header
	section := io.NewSectionReader(r, offset, headerSize)
	if err := gob.NewDecoder(section).Decode(&h); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}
	if !h.Matches(want) {
		return nil, ErrStale
	}

	offset += headerSize
	data, err := ioutil.ReadAll(lz4.NewReader(io.NewSectionReader(r, offset, size-offset)))
	if err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}
	if int64(len(data)) != h.Size {
		return nil, errors.Wrapf(ErrFileFormat, "blob is %d bytes, header says %d", len(data), h.Size)
	}
	return data, nil
}

// Save writes data to path, replacing any previous file only once the new
// one is complete.
func Save(path string, h Header, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := ioutil.TempFile(filepath.Dir(path), ".pipecache")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := Encode(f, h, data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Load reads the blob at path through a memory mapping.
// A missing file yields no data and no error.
func Load(path string, want Header) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Decode(r, int64(r.Len()), want)
}
