package proto

import (
	"errors"

	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/tick"
	"github.com/raskfs/rask/pkg/wire"
)

// ErrDispatchUnknown marks a decode against an opcode this build does not
// implement a body for; callers treat it as "skip the body", not a
// connection-closing error (spec §7 dispatch-unknown).
var ErrDispatchUnknown = errors.New("proto: unknown opcode")

// ErrNotImplemented marks a known opcode reaching a handler state this
// build does not support (spec §7 handler-unimplemented, e.g. TENANT or
// TENANT-HASH addressed to a tenant we do not host or are not subscribed
// to). Unlike ErrDispatchUnknown this is fatal to the connection: a
// caller returning it from a Handler causes the reader loop to close the
// connection (spec §4.6/§9 — "an unimplemented branch raises
// NotImplemented rather than a silent drop, so the test suite can locate
// it").
var ErrNotImplemented = errors.New("proto: not implemented")

// Stat carries the optional per-file metadata attached to FILE-EXISTS.
type Stat struct {
	SizeBytes uint64
	Modified  tick.Tick
}

func (s Stat) encode(w *wire.Writer) {
	w.Uint64(s.SizeBytes)
	w.Tick(s.Modified)
}

func decodeStat(r *wire.Reader) (Stat, error) {
	size, err := r.Uint64()
	if err != nil {
		return Stat{}, err
	}
	mod, err := r.Tick()
	if err != nil {
		return Stat{}, err
	}
	return Stat{SizeBytes: size, Modified: mod}, nil
}

// Version is the body of a VERSION packet: the sender's supported
// protocol version.
type Version struct {
	Version byte
}

func (v Version) Encode() []byte { return []byte{v.Version} }

func DecodeVersion(body []byte) (Version, error) {
	if len(body) < 1 {
		return Version{}, wire.ErrPrematureEOF
	}
	return Version{Version: body[0]}, nil
}

// Tenant is the body of a TENANT packet: a tenant name and its
// advertised top-level rollup hash.
type Tenant struct {
	Name string
	Hash digest.Hash
}

func (t Tenant) Encode() []byte {
	w := wire.NewWriter()
	_ = w.String(t.Name)
	w.Raw(t.Hash[:])
	return w.Bytes()
}

func DecodeTenant(body []byte) (Tenant, error) {
	r := wire.NewReader(body)
	name, err := r.String()
	if err != nil {
		return Tenant{}, err
	}
	h, err := r.Bytes(digest.Size)
	if err != nil {
		return Tenant{}, err
	}
	var hash digest.Hash
	copy(hash[:], h)
	return Tenant{Name: name, Hash: hash}, nil
}

// TenantHashEntry is one child of a TENANT-HASH packet: the next
// base32 digit in the low 5 bits packed with flags in the high bits,
// plus that child's rollup hash.
type TenantHashEntry struct {
	SuffixAndFlags byte
	Hash           digest.Hash
}

// Suffix extracts the base32 child digit (low 5 bits).
func (e TenantHashEntry) Suffix() byte { return e.SuffixAndFlags & 0x1F }

// TenantHash is the body of a TENANT-HASH packet: the tenant, the
// prefix being described, and zero-or-more child entries.
type TenantHash struct {
	Name    string
	Prefix  string
	Entries []TenantHashEntry
}

func (t TenantHash) Encode() []byte {
	w := wire.NewWriter()
	_ = w.String(t.Name)
	_ = w.String(t.Prefix)
	for _, e := range t.Entries {
		w.Byte(e.SuffixAndFlags)
		w.Raw(e.Hash[:])
	}
	return w.Bytes()
}

func DecodeTenantHash(body []byte) (TenantHash, error) {
	r := wire.NewReader(body)
	name, err := r.String()
	if err != nil {
		return TenantHash{}, err
	}
	prefix, err := r.String()
	if err != nil {
		return TenantHash{}, err
	}
	var entries []TenantHashEntry
	for r.Remaining() > 0 {
		flags, err := r.Byte()
		if err != nil {
			return TenantHash{}, err
		}
		hb, err := r.Bytes(digest.Size)
		if err != nil {
			return TenantHash{}, err
		}
		var hash digest.Hash
		copy(hash[:], hb)
		entries = append(entries, TenantHashEntry{SuffixAndFlags: flags, Hash: hash})
	}
	return TenantHash{Name: name, Prefix: prefix, Entries: entries}, nil
}

// FileHash is the body of a FILE-HASH packet: an acknowledgement of a
// file's content hash for a file not yet carrying a priority tick
// (spec §4.7).
type FileHash struct {
	Tenant string
	Name   string
	Hash   digest.Hash
}

func (f FileHash) Encode() []byte {
	w := wire.NewWriter()
	_ = w.String(f.Tenant)
	_ = w.String(f.Name)
	w.Raw(f.Hash[:])
	return w.Bytes()
}

func DecodeFileHash(body []byte) (FileHash, error) {
	r := wire.NewReader(body)
	tenant, err := r.String()
	if err != nil {
		return FileHash{}, err
	}
	name, err := r.String()
	if err != nil {
		return FileHash{}, err
	}
	hb, err := r.Bytes(digest.Size)
	if err != nil {
		return FileHash{}, err
	}
	var hash digest.Hash
	copy(hash[:], hb)
	return FileHash{Tenant: tenant, Name: name, Hash: hash}, nil
}

// FileExists is the body of a FILE-EXISTS packet: apply-or-create a file
// inode at the given priority, with its size/modified stat.
type FileExists struct {
	Priority tick.Tick
	Tenant   string
	Name     string
	Stat     Stat
}

func (f FileExists) Encode() []byte {
	w := wire.NewWriter()
	w.Tick(f.Priority)
	_ = w.String(f.Tenant)
	_ = w.String(f.Name)
	f.Stat.encode(w)
	return w.Bytes()
}

func DecodeFileExists(body []byte) (FileExists, error) {
	r := wire.NewReader(body)
	pri, err := r.Tick()
	if err != nil {
		return FileExists{}, err
	}
	tenant, err := r.String()
	if err != nil {
		return FileExists{}, err
	}
	name, err := r.String()
	if err != nil {
		return FileExists{}, err
	}
	st, err := decodeStat(r)
	if err != nil {
		return FileExists{}, err
	}
	return FileExists{Priority: pri, Tenant: tenant, Name: name, Stat: st}, nil
}

// CreateDirectory is the body of a CREATE-DIRECTORY packet.
type CreateDirectory struct {
	Priority tick.Tick
	Tenant   string
	Name     string
}

func (c CreateDirectory) Encode() []byte {
	w := wire.NewWriter()
	w.Tick(c.Priority)
	_ = w.String(c.Tenant)
	_ = w.String(c.Name)
	return w.Bytes()
}

func DecodeCreateDirectory(body []byte) (CreateDirectory, error) {
	r := wire.NewReader(body)
	pri, err := r.Tick()
	if err != nil {
		return CreateDirectory{}, err
	}
	tenant, err := r.String()
	if err != nil {
		return CreateDirectory{}, err
	}
	name, err := r.String()
	if err != nil {
		return CreateDirectory{}, err
	}
	return CreateDirectory{Priority: pri, Tenant: tenant, Name: name}, nil
}

// MoveOut is the body of a MOVE-OUT packet: marks a path as moved away
// from the tenant tree at the given priority.
type MoveOut struct {
	Priority tick.Tick
	Tenant   string
	Name     string
}

func (m MoveOut) Encode() []byte {
	w := wire.NewWriter()
	w.Tick(m.Priority)
	_ = w.String(m.Tenant)
	_ = w.String(m.Name)
	return w.Bytes()
}

func DecodeMoveOut(body []byte) (MoveOut, error) {
	r := wire.NewReader(body)
	pri, err := r.Tick()
	if err != nil {
		return MoveOut{}, err
	}
	tenant, err := r.String()
	if err != nil {
		return MoveOut{}, err
	}
	name, err := r.String()
	if err != nil {
		return MoveOut{}, err
	}
	return MoveOut{Priority: pri, Tenant: tenant, Name: name}, nil
}

// FileDataBlock is the body of a FILE-DATA-BLOCK packet: a byte range to
// write into the named file.
type FileDataBlock struct {
	Tenant string
	Name   string
	Offset uint64
	Data   []byte
}

func (f FileDataBlock) Encode() []byte {
	w := wire.NewWriter()
	_ = w.String(f.Tenant)
	_ = w.String(f.Name)
	w.Uint64(f.Offset)
	_ = w.Size(len(f.Data))
	w.Raw(f.Data)
	return w.Bytes()
}

func DecodeFileDataBlock(body []byte) (FileDataBlock, error) {
	r := wire.NewReader(body)
	tenant, err := r.String()
	if err != nil {
		return FileDataBlock{}, err
	}
	name, err := r.String()
	if err != nil {
		return FileDataBlock{}, err
	}
	off, err := r.Uint64()
	if err != nil {
		return FileDataBlock{}, err
	}
	n, err := r.Size()
	if err != nil {
		return FileDataBlock{}, err
	}
	data, err := r.Bytes(n)
	if err != nil {
		return FileDataBlock{}, err
	}
	return FileDataBlock{Tenant: tenant, Name: name, Offset: off, Data: append([]byte(nil), data...)}, nil
}
