package nntp

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// dotStuff renders lines as a dot-terminated multiline NNTP body: any line
// beginning with '.' gets a second leading '.', and the block ends with the
// "\r\n.\r\n" terminator (spec §4.1). Used only for the GZIP-framed path;
// the uncompressed path delegates dot-stuffing to net/textproto's
// DotWriter, the same primitive the teacher uses in sendMultilineResponse.
func dotStuff(lines []string) []byte {
	var buf bytes.Buffer
	for _, line := range lines {
		if strings.HasPrefix(line, ".") {
			buf.WriteByte('.')
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	buf.WriteString(".\r\n")
	return buf.Bytes()
}

// gzipFrame compresses a dot-stuffed multiline body into a single GZIP
// stream (spec §4.1: "XFEATURE COMPRESS GZIP TERMINATOR ... the
// decompressed output matches the uncompressed protocol verbatim").
func gzipFrame(lines []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(dotStuff(lines)); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipUnframe reverses gzipFrame, used by tests to verify round-tripping.
func gzipUnframe(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
