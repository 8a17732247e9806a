package publish

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/crates-registry/core/internal/apperror"
)

// Request is the decoded body of PUT /api/v1/crates/new: metadata JSON and
// tarball bytes, each prefixed by a little-endian uint32 length, per §6.
type Request struct {
	MetadataJSON []byte
	Tarball      io.Reader
}

// DecodeRequest reads the length-prefixed metadata block from r and leaves
// the tarball as a bounded io.Reader over the remainder, so the tarball
// inspector can stream it without buffering the whole thing twice.
// metadataCeiling bounds the metadata block; maxUploadSize bounds the
// tarball block that follows.
func DecodeRequest(r io.Reader, metadataCeiling, maxUploadSize int64) (*Request, error) {
	metaLen, err := readU32LE(r)
	if err != nil {
		return nil, apperror.Wrap(apperror.Validation, op+".DecodeRequest", "reading metadata length prefix", err)
	}
	if int64(metaLen) > metadataCeiling {
		return nil, apperror.New(apperror.Validation, op+".DecodeRequest", fmt.Sprintf("metadata block of %d bytes exceeds ceiling of %d", metaLen, metadataCeiling))
	}
	meta := make([]byte, metaLen)
	if _, err := io.ReadFull(r, meta); err != nil {
		return nil, apperror.Wrap(apperror.Validation, op+".DecodeRequest", "reading metadata block", err)
	}

	tarLen, err := readU32LE(r)
	if err != nil {
		return nil, apperror.Wrap(apperror.Validation, op+".DecodeRequest", "reading tarball length prefix", err)
	}
	if int64(tarLen) > maxUploadSize {
		return nil, apperror.New(apperror.Validation, op+".DecodeRequest", fmt.Sprintf("tarball block of %d bytes exceeds max upload size of %d", tarLen, maxUploadSize))
	}

	return &Request{
		MetadataJSON: meta,
		Tarball:      io.LimitReader(r, int64(tarLen)),
	}, nil
}

func readU32LE(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
