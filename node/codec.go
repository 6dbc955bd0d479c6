package node

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/sharedcode/cascade"
)

// Wire framing, all integers big-endian:
//
//	magic(2) kind(1) size(8) body
//
// chunk:       body = payload; size == len(payload)
// inline-file: body = mimeLen(2) mime payload; size == len(payload)
// file:        body = count(4) count*digest(32) mimeLen(2) mime; size = sum of child sizes
// collection:  body = count(4) count*{nameLen(2) name digest(32)}; size = sum of child sizes
const (
	magic0 = 0xCA
	magic1 = 0x5C

	headerLen = 2 + 1 + 8
)

// MaxNameBytes caps a collection entry name's UTF-8 byte length. Deployments
// override it from Config at startup.
var MaxNameBytes = 255

func malformed(format string, a ...any) error {
	return cascade.Error{Code: cascade.MalformedNode, Err: fmt.Errorf(format, a...)}
}

// Encode serialises the node to its wire form. For chunks and inline-files
// the size field is derived from the payload; for files and collections the
// caller supplies the child-size sum in n.Size.
func Encode(n Node) ([]byte, error) {
	size := n.Size
	switch n.Kind {
	case cascade.NodeChunk, cascade.NodeInlineFile:
		size = int64(len(n.Payload))
	case cascade.NodeFile, cascade.NodeCollection:
	default:
		return nil, malformed("unknown node kind %d", n.Kind)
	}

	ba := make([]byte, 0, headerLen+len(n.Payload))
	ba = append(ba, magic0, magic1, byte(n.Kind))
	ba = binary.BigEndian.AppendUint64(ba, uint64(size))

	switch n.Kind {
	case cascade.NodeChunk:
		ba = append(ba, n.Payload...)
	case cascade.NodeInlineFile:
		if len(n.ContentType) > 0xFFFF {
			return nil, malformed("content type of %d bytes exceeds field width", len(n.ContentType))
		}
		ba = binary.BigEndian.AppendUint16(ba, uint16(len(n.ContentType)))
		ba = append(ba, n.ContentType...)
		ba = append(ba, n.Payload...)
	case cascade.NodeFile:
		ba = binary.BigEndian.AppendUint32(ba, uint32(len(n.Children)))
		for i := range n.Children {
			ba = append(ba, n.Children[i][:]...)
		}
		if len(n.ContentType) > 0xFFFF {
			return nil, malformed("content type of %d bytes exceeds field width", len(n.ContentType))
		}
		ba = binary.BigEndian.AppendUint16(ba, uint16(len(n.ContentType)))
		ba = append(ba, n.ContentType...)
	case cascade.NodeCollection:
		seen := make(map[string]struct{}, len(n.Entries))
		ba = binary.BigEndian.AppendUint32(ba, uint32(len(n.Entries)))
		for i := range n.Entries {
			name := n.Entries[i].Name
			if err := checkName(name); err != nil {
				return nil, err
			}
			if _, dup := seen[name]; dup {
				return nil, malformed("duplicate collection entry name %q", name)
			}
			seen[name] = struct{}{}
			ba = binary.BigEndian.AppendUint16(ba, uint16(len(name)))
			ba = append(ba, name...)
			ba = append(ba, n.Entries[i].Digest[:]...)
		}
	}
	return ba, nil
}

// QuickValidate performs framing-only checks without allocating child
// references and returns the node kind.
func QuickValidate(ba []byte) (cascade.NodeKind, error) {
	kind, size, body, err := readHeader(ba)
	if err != nil {
		return cascade.NodeUnknown, err
	}
	switch kind {
	case cascade.NodeChunk:
		if int64(len(body)) != size {
			return kind, malformed("chunk declares %d payload bytes, body has %d", size, len(body))
		}
	case cascade.NodeInlineFile:
		if len(body) < 2 {
			return kind, malformed("inline-file body truncated")
		}
		mimeLen := int(binary.BigEndian.Uint16(body))
		if len(body) < 2+mimeLen {
			return kind, malformed("inline-file MIME field truncated")
		}
		if int64(len(body)-2-mimeLen) != size {
			return kind, malformed("inline-file declares %d payload bytes, body has %d", size, len(body)-2-mimeLen)
		}
	case cascade.NodeFile:
		if len(body) < 4 {
			return kind, malformed("file body truncated")
		}
		count := int(binary.BigEndian.Uint32(body))
		rest := len(body) - 4 - count*32
		if rest < 2 {
			return kind, malformed("file declares %d children, body too short", count)
		}
		mimeLen := int(binary.BigEndian.Uint16(body[4+count*32:]))
		if rest != 2+mimeLen {
			return kind, malformed("file body has %d trailing bytes after %d children", rest, count)
		}
	case cascade.NodeCollection:
		if len(body) < 4 {
			return kind, malformed("collection body truncated")
		}
		// Entry names are variable width; framing is fully walked by Decode.
	default:
		return cascade.NodeUnknown, malformed("unknown node kind %d", kind)
	}
	return kind, nil
}

// Decode parses the wire form back into a Node, enforcing the structural
// invariants: exact framing, unique valid collection names, declared counts.
func Decode(ba []byte) (Node, error) {
	kind, size, body, err := readHeader(ba)
	if err != nil {
		return Node{}, err
	}
	n := Node{Kind: kind, Size: size}
	switch kind {
	case cascade.NodeChunk:
		if int64(len(body)) != size {
			return Node{}, malformed("chunk declares %d payload bytes, body has %d", size, len(body))
		}
		n.Payload = body
	case cascade.NodeInlineFile:
		if len(body) < 2 {
			return Node{}, malformed("inline-file body truncated")
		}
		mimeLen := int(binary.BigEndian.Uint16(body))
		if len(body) < 2+mimeLen {
			return Node{}, malformed("inline-file MIME field truncated")
		}
		n.ContentType = string(body[2 : 2+mimeLen])
		n.Payload = body[2+mimeLen:]
		if int64(len(n.Payload)) != size {
			return Node{}, malformed("inline-file declares %d payload bytes, body has %d", size, len(n.Payload))
		}
	case cascade.NodeFile:
		if len(body) < 4 {
			return Node{}, malformed("file body truncated")
		}
		count := int(binary.BigEndian.Uint32(body))
		off := 4
		if len(body) < off+count*32+2 {
			return Node{}, malformed("file declares %d children, body too short", count)
		}
		n.Children = make([][32]byte, count)
		for i := 0; i < count; i++ {
			copy(n.Children[i][:], body[off:off+32])
			off += 32
		}
		mimeLen := int(binary.BigEndian.Uint16(body[off:]))
		off += 2
		if len(body) != off+mimeLen {
			return Node{}, malformed("file body has trailing bytes")
		}
		n.ContentType = string(body[off:])
	case cascade.NodeCollection:
		if len(body) < 4 {
			return Node{}, malformed("collection body truncated")
		}
		count := int(binary.BigEndian.Uint32(body))
		off := 4
		n.Entries = make([]Entry, 0, count)
		seen := make(map[string]struct{}, count)
		for i := 0; i < count; i++ {
			if len(body) < off+2 {
				return Node{}, malformed("collection entry %d truncated", i)
			}
			nameLen := int(binary.BigEndian.Uint16(body[off:]))
			off += 2
			if len(body) < off+nameLen+32 {
				return Node{}, malformed("collection entry %d truncated", i)
			}
			name := string(body[off : off+nameLen])
			off += nameLen
			if err := checkName(name); err != nil {
				return Node{}, err
			}
			if _, dup := seen[name]; dup {
				return Node{}, malformed("duplicate collection entry name %q", name)
			}
			seen[name] = struct{}{}
			var e Entry
			e.Name = name
			copy(e.Digest[:], body[off:off+32])
			off += 32
			n.Entries = append(n.Entries, e)
		}
		if off != len(body) {
			return Node{}, malformed("collection body has %d trailing bytes", len(body)-off)
		}
	default:
		return Node{}, malformed("unknown node kind %d", kind)
	}
	return n, nil
}

func readHeader(ba []byte) (cascade.NodeKind, int64, []byte, error) {
	if len(ba) < headerLen {
		return cascade.NodeUnknown, 0, nil, malformed("node of %d bytes is shorter than the header", len(ba))
	}
	if ba[0] != magic0 || ba[1] != magic1 {
		return cascade.NodeUnknown, 0, nil, malformed("bad magic 0x%02x%02x", ba[0], ba[1])
	}
	kind := cascade.NodeKind(ba[2])
	size := int64(binary.BigEndian.Uint64(ba[3:11]))
	if size < 0 {
		return cascade.NodeUnknown, 0, nil, malformed("negative declared size")
	}
	return kind, size, ba[headerLen:], nil
}

func checkName(name string) error {
	if len(name) == 0 {
		return malformed("empty collection entry name")
	}
	if len(name) > MaxNameBytes {
		return malformed("collection entry name of %d bytes exceeds the %d byte cap", len(name), MaxNameBytes)
	}
	if !utf8.ValidString(name) {
		return malformed("collection entry name is not valid UTF-8")
	}
	return nil
}
