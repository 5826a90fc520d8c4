// Package manifest decodes the DeltaArchiveManifest structure embedded in
// an OTA payload. The wire format is protobuf; rather than checking in
// protoc-gen-go output for a schema that lives entirely outside this module,
// the fields the core actually consumes (§3 of the spec this package
// implements) are walked directly with protowire. Unknown fields are
// skipped, which gives us forward compatibility for free.
package manifest

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// OperationType mirrors update_metadata.proto's InstallOperation.Type enum.
type OperationType int32

const (
	OpReplace      OperationType = 0
	OpReplaceBZ    OperationType = 1
	OpMove         OperationType = 2
	OpBSDiff       OperationType = 3
	OpSourceCopy   OperationType = 4
	OpSourceBSDiff OperationType = 5
	OpZero         OperationType = 6
	OpDiscard      OperationType = 7
	OpReplaceXZ    OperationType = 8
	OpPuffDiff     OperationType = 9
	OpBrotliBSDiff OperationType = 10
	OpReplaceZSTD  OperationType = 13
)

func (t OperationType) String() string {
	switch t {
	case OpReplace:
		return "REPLACE"
	case OpReplaceBZ:
		return "REPLACE_BZ"
	case OpMove:
		return "MOVE"
	case OpBSDiff:
		return "BSDIFF"
	case OpSourceCopy:
		return "SOURCE_COPY"
	case OpSourceBSDiff:
		return "SOURCE_BSDIFF"
	case OpZero:
		return "ZERO"
	case OpDiscard:
		return "DISCARD"
	case OpReplaceXZ:
		return "REPLACE_XZ"
	case OpPuffDiff:
		return "PUFFDIFF"
	case OpBrotliBSDiff:
		return "BROTLI_BSDIFF"
	case OpReplaceZSTD:
		return "REPLACE_ZSTD"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Extent is a contiguous block range (start_block, num_blocks).
type Extent struct {
	StartBlock uint64
	NumBlocks  uint64
}

// InstallOperation is one typed instruction to mutate an extent of a partition.
type InstallOperation struct {
	Type           OperationType
	DataOffset     uint64
	DataLength     uint64
	SrcExtents     []Extent
	DstExtents     []Extent
	DataSHA256Hash []byte
}

// PartitionUpdate is the ordered operation list for one named partition.
type PartitionUpdate struct {
	PartitionName string
	Operations    []InstallOperation
}

// Manifest is the decoded DeltaArchiveManifest.
type Manifest struct {
	BlockSize  uint32
	Partitions []PartitionUpdate
}

// field numbers consumed from the wire manifest. Only the fields the core
// needs are given names here; everything else is skipped during the walk.
const (
	fieldManifestBlockSize  = 3
	fieldManifestPartitions = 13

	fieldPartitionName       = 1
	fieldPartitionOperations = 9

	fieldOpType       = 1
	fieldOpDataOffset = 2
	fieldOpDataLength = 3
	fieldOpSrcExtents = 4
	fieldOpDstExtents = 6
	fieldOpDataHash   = 8

	fieldExtentStartBlock = 1
	fieldExtentNumBlocks  = 2
)

// Decode parses raw manifest bytes into a Manifest. Unknown fields, and
// known field numbers carrying an unexpected wire type, are skipped rather
// than rejected; a reserved or malformed wire type is an error.
func Decode(buf []byte) (*Manifest, error) {
	m := &Manifest{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("manifest: malformed tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldManifestBlockSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, fmt.Errorf("manifest: malformed block_size: %w", protowire.ParseError(n))
			}
			m.BlockSize = uint32(v)
			buf = buf[n:]
		case num == fieldManifestPartitions && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, fmt.Errorf("manifest: malformed partitions entry: %w", protowire.ParseError(n))
			}
			pu, err := decodePartition(v)
			if err != nil {
				return nil, err
			}
			m.Partitions = append(m.Partitions, pu)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("manifest: malformed field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodePartition(buf []byte) (PartitionUpdate, error) {
	pu := PartitionUpdate{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return pu, fmt.Errorf("partition: malformed tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldPartitionName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return pu, fmt.Errorf("partition: malformed name: %w", protowire.ParseError(n))
			}
			pu.PartitionName = string(v)
			buf = buf[n:]
		case num == fieldPartitionOperations && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return pu, fmt.Errorf("partition: malformed operation entry: %w", protowire.ParseError(n))
			}
			op, err := decodeOperation(v)
			if err != nil {
				return pu, err
			}
			pu.Operations = append(pu.Operations, op)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return pu, fmt.Errorf("partition: malformed field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return pu, nil
}

func decodeOperation(buf []byte) (InstallOperation, error) {
	op := InstallOperation{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return op, fmt.Errorf("operation: malformed tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldOpType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed type: %w", protowire.ParseError(n))
			}
			op.Type = OperationType(v)
			buf = buf[n:]
		case num == fieldOpDataOffset && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed data_offset: %w", protowire.ParseError(n))
			}
			op.DataOffset = v
			buf = buf[n:]
		case num == fieldOpDataLength && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed data_length: %w", protowire.ParseError(n))
			}
			op.DataLength = v
			buf = buf[n:]
		case num == fieldOpSrcExtents && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed src_extents: %w", protowire.ParseError(n))
			}
			ext, err := decodeExtent(v)
			if err != nil {
				return op, err
			}
			op.SrcExtents = append(op.SrcExtents, ext)
			buf = buf[n:]
		case num == fieldOpDstExtents && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed dst_extents: %w", protowire.ParseError(n))
			}
			ext, err := decodeExtent(v)
			if err != nil {
				return op, err
			}
			op.DstExtents = append(op.DstExtents, ext)
			buf = buf[n:]
		case num == fieldOpDataHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed data_sha256_hash: %w", protowire.ParseError(n))
			}
			op.DataSHA256Hash = append([]byte(nil), v...)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return op, fmt.Errorf("operation: malformed field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return op, nil
}

func decodeExtent(buf []byte) (Extent, error) {
	ext := Extent{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return ext, fmt.Errorf("extent: malformed tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldExtentStartBlock && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return ext, fmt.Errorf("extent: malformed start_block: %w", protowire.ParseError(n))
			}
			ext.StartBlock = v
			buf = buf[n:]
		case num == fieldExtentNumBlocks && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return ext, fmt.Errorf("extent: malformed num_blocks: %w", protowire.ParseError(n))
			}
			ext.NumBlocks = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return ext, fmt.Errorf("extent: malformed field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return ext, nil
}

// Encode serializes a Manifest back to wire bytes. Used by tests to build
// synthetic payloads; production payloads are always decoded, never produced,
// by this module.
func Encode(m *Manifest) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldManifestBlockSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.BlockSize))
	for _, pu := range m.Partitions {
		buf = protowire.AppendTag(buf, fieldManifestPartitions, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodePartition(pu))
	}
	return buf
}

func encodePartition(pu PartitionUpdate) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldPartitionName, protowire.BytesType)
	buf = protowire.AppendString(buf, pu.PartitionName)
	for _, op := range pu.Operations {
		buf = protowire.AppendTag(buf, fieldPartitionOperations, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeOperation(op))
	}
	return buf
}

func encodeOperation(op InstallOperation) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldOpType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(op.Type))
	buf = protowire.AppendTag(buf, fieldOpDataOffset, protowire.VarintType)
	buf = protowire.AppendVarint(buf, op.DataOffset)
	buf = protowire.AppendTag(buf, fieldOpDataLength, protowire.VarintType)
	buf = protowire.AppendVarint(buf, op.DataLength)
	for _, ext := range op.SrcExtents {
		buf = protowire.AppendTag(buf, fieldOpSrcExtents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeExtent(ext))
	}
	for _, ext := range op.DstExtents {
		buf = protowire.AppendTag(buf, fieldOpDstExtents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeExtent(ext))
	}
	if len(op.DataSHA256Hash) > 0 {
		buf = protowire.AppendTag(buf, fieldOpDataHash, protowire.BytesType)
		buf = protowire.AppendBytes(buf, op.DataSHA256Hash)
	}
	return buf
}

func encodeExtent(ext Extent) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldExtentStartBlock, protowire.VarintType)
	buf = protowire.AppendVarint(buf, ext.StartBlock)
	buf = protowire.AppendTag(buf, fieldExtentNumBlocks, protowire.VarintType)
	buf = protowire.AppendVarint(buf, ext.NumBlocks)
	return buf
}
