package packfile

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // this is the hash git's wire format itself mandates, not a security choice
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/xerrors"

	"gitgo/ginternals"
	"gitgo/ginternals/object"
)

// List of errors specific to in-memory packfile ingestion (ex. from a
// clone's git-upload-pack response), as opposed to the on-disk Pack type
// in packfile.go which always has a companion .idx to lean on.
var (
	// ErrTrailerMismatch is returned when a packfile's trailing checksum
	// doesn't match the SHA-1 of the bytes that precede it
	ErrTrailerMismatch = errors.New("packfile trailer does not match its content")
	// ErrDeltaSourceMismatch is returned when a delta's declared source
	// size doesn't match the size of the base object it was resolved
	// against
	ErrDeltaSourceMismatch = errors.New("delta source size does not match base object")
	// ErrDeltaSizeMismatch is returned when applying a delta produces an
	// object whose size doesn't match the delta's declared target size
	ErrDeltaSizeMismatch = errors.New("delta target size does not match resolved object")
	// ErrDeltaInvalid is returned when a delta stream uses a reserved
	// opcode or references bytes outside its base object
	ErrDeltaInvalid = errors.New("invalid delta instructions")
	// ErrBaseNotFound is returned when a ref-delta names a base object
	// that is neither in the same pack nor already in the object store
	ErrBaseNotFound = errors.New("delta base object not found")
)

// ObjectStore is the minimal surface ParseInMemory needs from a
// repository: a way to look up objects that aren't part of the pack
// (ref-delta bases from history already on disk) and a way to persist
// every object the pack resolves to. *Repository satisfies this.
type ObjectStore interface {
	GetObject(oid ginternals.Oid) (*object.Object, error)
	WriteObject(o *object.Object) (ginternals.Oid, error)
}

// memRecord is one object record read sequentially from an in-memory
// packfile, before delta resolution
type memRecord struct {
	offset     uint64
	typ        object.Type
	data       []byte
	baseOid    ginternals.Oid
	baseOffset uint64
}

// ParseInMemory decodes a packfile held entirely in memory, such as the
// body of a single git-upload-pack HTTP response, and persists every
// object it contains (resolving ofs-delta/ref-delta records along the
// way) through store. It never touches disk: there is no .pack/.idx pair,
// only the bytes handed in.
func ParseInMemory(data []byte, store ObjectStore) ([]ginternals.Oid, error) {
	if len(data) < packfileHeaderSize+ginternals.OidSize {
		return nil, xerrors.Errorf("packfile too small: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(data[0:4], packfileMagic()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(data[4:8], packfileVersion()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidVersion)
	}
	objectCount := binary.BigEndian.Uint32(data[8:12])

	trailer := data[len(data)-ginternals.OidSize:]
	body := data[:len(data)-ginternals.OidSize]
	sum := sha1.Sum(body) //nolint:gosec // git's own wire checksum, see the import comment above
	if !bytes.Equal(sum[:], trailer) {
		return nil, ErrTrailerMismatch
	}

	records := make([]*memRecord, 0, objectCount)
	byOffset := make(map[uint64]*memRecord, objectCount)
	byOid := make(map[ginternals.Oid]*memRecord, objectCount)

	offset := uint64(packfileHeaderSize)
	for i := uint32(0); i < objectCount; i++ {
		rec, next, err := readRecord(body, offset)
		if err != nil {
			return nil, xerrors.Errorf("could not read object %d/%d: %w", i+1, objectCount, err)
		}
		records = append(records, rec)
		byOffset[rec.offset] = rec
		offset = next
	}

	resolvedData := make(map[uint64][]byte, len(records))
	resolvedType := make(map[uint64]object.Type, len(records))

	var resolve func(rec *memRecord) ([]byte, object.Type, error)
	resolve = func(rec *memRecord) ([]byte, object.Type, error) {
		if d, ok := resolvedData[rec.offset]; ok {
			return d, resolvedType[rec.offset], nil
		}

		var out []byte
		var typ object.Type
		switch rec.typ {
		case object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag:
			out, typ = rec.data, rec.typ
		case object.ObjectDeltaOFS, object.ObjectDeltaRef:
			base, err := resolveBase(rec, byOffset, byOid, store, resolve)
			if err != nil {
				return nil, 0, err
			}
			out, err = applyDelta(base.data, rec.data)
			if err != nil {
				return nil, 0, xerrors.Errorf("could not resolve delta at offset %d: %w", rec.offset, err)
			}
			typ = base.typ
		default:
			return nil, 0, xerrors.Errorf("object %d has unknown type %d: %w", rec.offset, rec.typ, ErrInvalidMagic)
		}

		resolvedData[rec.offset] = out
		resolvedType[rec.offset] = typ
		return out, typ, nil
	}

	oids := make([]ginternals.Oid, 0, len(records))
	for _, rec := range records {
		out, typ, err := resolve(rec)
		if err != nil {
			return nil, err
		}
		o := object.New(typ, out)
		byOid[o.ID()] = &memRecord{offset: rec.offset, typ: typ, data: out}
		oid, err := store.WriteObject(o)
		if err != nil {
			return nil, xerrors.Errorf("could not persist object %s: %w", o.ID().String(), err)
		}
		oids = append(oids, oid)
	}

	return oids, nil
}

// resolvedRecord is what resolveBase hands back: enough to apply a delta
// against it, regardless of whether it came from the pack or the store
type resolvedRecord struct {
	data []byte
	typ  object.Type
}

func resolveBase(
	rec *memRecord,
	byOffset map[uint64]*memRecord,
	byOid map[ginternals.Oid]*memRecord,
	store ObjectStore,
	resolve func(*memRecord) ([]byte, object.Type, error),
) (*resolvedRecord, error) {
	if rec.typ == object.ObjectDeltaOFS {
		base, ok := byOffset[rec.baseOffset]
		if !ok {
			return nil, xerrors.Errorf("ofs-delta at %d references unknown offset %d: %w", rec.offset, rec.baseOffset, ErrBaseNotFound)
		}
		data, typ, err := resolve(base)
		if err != nil {
			return nil, err
		}
		return &resolvedRecord{data: data, typ: typ}, nil
	}

	// ref-delta: the base may be earlier in the same pack, or already
	// persisted from a previous clone/fetch
	if base, ok := byOid[rec.baseOid]; ok {
		data, typ, err := resolve(base)
		if err != nil {
			return nil, err
		}
		return &resolvedRecord{data: data, typ: typ}, nil
	}

	o, err := store.GetObject(rec.baseOid)
	if err != nil {
		return nil, xerrors.Errorf("ref-delta at %d references %s: %w", rec.offset, rec.baseOid.String(), ErrBaseNotFound)
	}
	return &resolvedRecord{data: o.Bytes(), typ: o.Type()}, nil
}

// readRecord decodes the object header at offset (type, size, optional
// delta base) and inflates its payload, returning the record and the
// offset of the next one.
func readRecord(body []byte, offset uint64) (*memRecord, uint64, error) {
	pos := offset

	first := body[pos]
	pos++
	typ := object.Type((first & 0b_0111_0000) >> 4)
	if !typ.IsValid() {
		return nil, 0, xerrors.Errorf("unknown object type %d at offset %d", typ, offset)
	}
	size := uint64(first & 0b_0000_1111)
	shift := uint(4)
	for first&0x80 != 0 {
		first = body[pos]
		pos++
		size |= uint64(first&0x7f) << shift
		shift += 7
	}

	rec := &memRecord{offset: offset, typ: typ}

	switch typ {
	case object.ObjectDeltaRef:
		oid, err := ginternals.NewOidFromHex(body[pos : pos+ginternals.OidSize])
		if err != nil {
			return nil, 0, xerrors.Errorf("could not parse ref-delta base: %w", err)
		}
		rec.baseOid = oid
		pos += ginternals.OidSize
	case object.ObjectDeltaOFS:
		deltaOffset, n := readOfsDeltaOffset(body[pos:])
		rec.baseOffset = offset - deltaOffset
		pos += uint64(n)
	}

	br := bytes.NewReader(body[pos:])
	startLen := br.Len()
	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, 0, xerrors.Errorf("could not open zlib stream at offset %d: %w", offset, err)
	}
	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil { //nolint:gosec // size is read from trusted offsets we already validated
		zr.Close() //nolint:errcheck // we're already returning the read error
		return nil, 0, xerrors.Errorf("could not inflate object at offset %d: %w", offset, err)
	}
	if err := zr.Close(); err != nil {
		return nil, 0, xerrors.Errorf("could not close zlib stream at offset %d: %w", offset, err)
	}
	if uint64(out.Len()) != size {
		return nil, 0, xerrors.Errorf("object at offset %d: expected %d bytes, got %d", offset, size, out.Len())
	}
	rec.data = out.Bytes()

	consumed := uint64(startLen - br.Len())
	return rec, pos + consumed, nil
}

// readOfsDeltaOffset reads an ofs-delta negative offset: base-128,
// MSB-continuation, with a +1 bias added to the accumulator on every
// continuation byte.
func readOfsDeltaOffset(b []byte) (offset uint64, bytesRead int) {
	c := b[0]
	offset = uint64(c & 0x7f)
	bytesRead = 1
	for c&0x80 != 0 {
		c = b[bytesRead]
		bytesRead++
		offset = ((offset + 1) << 7) | uint64(c&0x7f)
	}
	return offset, bytesRead
}

// readDeltaVarint reads a delta stream's size varints (source_size,
// target_size): base-128, MSB-continuation, little-endian shifts, no
// bias. Returns the value and how many bytes were consumed.
func readDeltaVarint(b []byte) (uint64, int) {
	var val uint64
	var shift uint
	n := 0
	for {
		c := b[n]
		val |= uint64(c&0x7f) << shift
		n++
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return val, n
}

// applyDelta replays a delta's copy/insert instructions against base and
// returns the resolved object's bytes.
func applyDelta(base, delta []byte) ([]byte, error) {
	srcSize, n := readDeltaVarint(delta)
	delta = delta[n:]
	if uint64(len(base)) != srcSize {
		return nil, xerrors.Errorf("base is %d bytes, delta expects %d: %w", len(base), srcSize, ErrDeltaSourceMismatch)
	}

	targetSize, n := readDeltaVarint(delta)
	delta = delta[n:]

	out := make([]byte, 0, targetSize)
	for len(delta) > 0 {
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd&0x80 != 0:
			var cpOffset, length uint32
			if cmd&0x01 != 0 {
				cpOffset = uint32(delta[0])
				delta = delta[1:]
			}
			if cmd&0x02 != 0 {
				cpOffset |= uint32(delta[0]) << 8
				delta = delta[1:]
			}
			if cmd&0x04 != 0 {
				cpOffset |= uint32(delta[0]) << 16
				delta = delta[1:]
			}
			if cmd&0x08 != 0 {
				cpOffset |= uint32(delta[0]) << 24
				delta = delta[1:]
			}
			if cmd&0x10 != 0 {
				length = uint32(delta[0])
				delta = delta[1:]
			}
			if cmd&0x20 != 0 {
				length |= uint32(delta[0]) << 8
				delta = delta[1:]
			}
			if cmd&0x40 != 0 {
				length |= uint32(delta[0]) << 16
				delta = delta[1:]
			}
			if length == 0 {
				length = 0x10000
			}
			if uint64(cpOffset)+uint64(length) > uint64(len(base)) {
				return nil, xerrors.Errorf("copy [%d:%d] out of bounds for a %d byte base: %w", cpOffset, cpOffset+length, len(base), ErrDeltaInvalid)
			}
			out = append(out, base[cpOffset:cpOffset+length]...)
		case cmd != 0:
			n := int(cmd)
			if n > len(delta) {
				return nil, xerrors.Errorf("insert of %d bytes exceeds remaining delta: %w", n, ErrDeltaInvalid)
			}
			out = append(out, delta[:n]...)
			delta = delta[n:]
		default:
			return nil, xerrors.Errorf("opcode 0 is reserved: %w", ErrDeltaInvalid)
		}
	}

	if uint64(len(out)) != targetSize {
		return nil, xerrors.Errorf("resolved to %d bytes, delta declared %d: %w", len(out), targetSize, ErrDeltaSizeMismatch)
	}
	return out, nil
}
