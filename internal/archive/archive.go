// Package archive streams newline-delimited records out of input files.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"tweetnorm/internal/model"
)

// MaxLineBytes bounds a single record line.
const MaxLineBytes = 16 << 20

// ErrLineTooLong marks a line over MaxLineBytes. It matches
// model.ErrMalformedRecord.
var ErrLineTooLong = errors.Wrapf(model.ErrMalformedRecord, "line exceeds %d bytes", MaxLineBytes)

// Line is one non-blank line of a member stream.
type Line struct {
	File   string
	Member string
	// Number is 1-based within the member.
	Number int64
	Data   []byte
	// Err is set when the line could not be read as a record.
	Err    error
}

// SortInputs orders input paths for processing. Reverse order visits newer
// dumps first, which means fewer later updates to users.
func SortInputs(paths []string, reverse bool) []string {
	out := append([]string(nil), paths...)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(out)))
	} else {
		sort.Strings(out)
	}
	return out
}

// Walk opens path and calls fn for every non-blank line of every member, in
// order. Zip archives are read member by member, sorted by name (reversed
// when reverse is set); .gz and .zst files are one member each; anything
// else is read as plain text.
func Walk(ctx context.Context, path string, reverse bool, fn func(Line) error) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return walkZip(ctx, path, reverse, fn)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer f.Close()
	r, closer, err := decompress(path, f)
	if err != nil {
		return err
	}
	defer closer()
	return Lines(ctx, r, path, filepath.Base(path), fn)
}

func decompress(name string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "gzip %s", name)
		}
		return gz, func() { _ = gz.Close() }, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "zstd %s", name)
		}
		return zr, zr.Close, nil
	}
	return r, func() {}, nil
}

func walkZip(ctx context.Context, path string, reverse bool, fn func(Line) error) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrap(err, "open zip")
	}
	defer zr.Close()

	members := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			members = append(members, f)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if reverse {
			return members[i].Name > members[j].Name
		}
		return members[i].Name < members[j].Name
	})

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := walkMember(ctx, path, m, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkMember(ctx context.Context, path string, m *zip.File, fn func(Line) error) error {
	rc, err := m.Open()
	if err != nil {
		return errors.Wrapf(err, "open member %s", m.Name)
	}
	defer rc.Close()
	r, closer, err := decompress(m.Name, rc)
	if err != nil {
		return err
	}
	defer closer()
	return Lines(ctx, r, path, m.Name, fn)
}

// Lines calls fn for each non-blank line of r. Data is only valid during
// the call. A line longer than MaxLineBytes is drained and passed to fn with
// Err set to ErrLineTooLong and no Data; reading goes on with the next line.
func Lines(ctx context.Context, r io.Reader, file, member string, fn func(Line) error) error {
	br := bufio.NewReaderSize(r, 64<<10)
	var (
		n       int64
		buf     []byte
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		size := len(buf) + len(chunk)
		if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			size--
		}
		switch {
		case tooLong:
		case size > MaxLineBytes:
			tooLong, buf = true, buf[:0]
		default:
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return errors.Wrapf(err, "read %s:%s line %d", file, member, n+1)
		}
		if eof && len(buf) == 0 && !tooLong {
			return nil
		}
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		l := Line{File: file, Member: member, Number: n}
		if tooLong {
			l.Err = ErrLineTooLong
		} else {
			l.Data = bytes.TrimSpace(buf)
		}
		if l.Err != nil || len(l.Data) > 0 {
			if err := fn(l); err != nil {
				return err
			}
		}
		buf, tooLong = buf[:0], false
		if eof {
			return nil
		}
	}
}
