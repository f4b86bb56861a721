package serializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: MsgType (1 byte), flags (1 byte), then every present field in flag order.
// Strings and lists are prefixed with their uint32 length, integers are fixed
// 8 byte values, everything big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasDocs    byte = 1 << 0
	hasIDs     byte = 1 << 1
	hasPattern byte = 1 << 2
	hasMinAge  byte = 1 << 3
	hasErr     byte = 1 << 4
	hasCode    byte = 1 << 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	if len(msg.Docs) > math.MaxUint32 || len(msg.IDs) > math.MaxUint32 {
		return nil, fmt.Errorf("message too large")
	}

	// Calculate total size needed
	w := writer{buf: make([]byte, b.sizeBytes(msg))}

	// Write message type, flags are set after knowing which fields are present
	w.buf[0] = byte(msg.MsgType)
	w.pos = 2
	var flags byte = 0

	if len(msg.Docs) > 0 {
		flags |= hasDocs
		w.uint32(uint32(len(msg.Docs)))
		for i := range msg.Docs {
			w.doc(&msg.Docs[i])
		}
	}

	if len(msg.IDs) > 0 {
		flags |= hasIDs
		w.uint32(uint32(len(msg.IDs)))
		for _, id := range msg.IDs {
			w.string(id)
		}
	}

	if msg.Pattern != "" {
		flags |= hasPattern
		w.string(msg.Pattern)
	}

	if msg.MinAge != 0 {
		flags |= hasMinAge
		w.int(msg.MinAge)
	}

	if msg.Err != "" {
		flags |= hasErr
		w.string(msg.Err)
	}

	if msg.Code != 0 {
		flags |= hasCode
		w.uint64(msg.Code)
	}

	w.buf[1] = flags
	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := reader{data: data, pos: 2}

	if flags&hasDocs != 0 {
		n, err := r.count("docs", 1)
		if err != nil {
			return err
		}
		msg.Docs = make([]document.Document, n)
		for i := range msg.Docs {
			if err := r.doc(&msg.Docs[i]); err != nil {
				return fmt.Errorf("doc %d: %w", i, err)
			}
		}
	}

	if flags&hasIDs != 0 {
		n, err := r.count("ids", 4)
		if err != nil {
			return err
		}
		msg.IDs = make([]string, n)
		for i := range msg.IDs {
			if msg.IDs[i], err = r.string("id"); err != nil {
				return err
			}
		}
	}

	var err error
	if flags&hasPattern != 0 {
		if msg.Pattern, err = r.string("pattern"); err != nil {
			return err
		}
	}

	if flags&hasMinAge != 0 {
		if msg.MinAge, err = r.int("min age"); err != nil {
			return err
		}
	}

	if flags&hasErr != 0 {
		if msg.Err, err = r.string("error"); err != nil {
			return err
		}
	}

	if flags&hasCode != 0 {
		if msg.Code, err = r.uint64("code"); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if len(msg.Docs) > 0 {
		size += 4 // doc count
		for i := range msg.Docs {
			size += docSize(&msg.Docs[i])
		}
	}
	if len(msg.IDs) > 0 {
		size += 4 // id count
		for _, id := range msg.IDs {
			size += 4 + len(id)
		}
	}
	if msg.Pattern != "" {
		size += 4 + len(msg.Pattern)
	}
	if msg.MinAge != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Code != 0 {
		size += 8
	}
	return size
}

// docSize is the encoded size of one document:
// id, age, longtext, nes.ted, list count and list values
func docSize(d *document.Document) int {
	size := 4 + len(d.ID) + 8 + 4 + len(d.LongText) + 8 + 4
	for _, item := range d.List {
		size += 4 + len(item.Value)
	}
	return size
}

// writer writes fields into a buffer of the exact final size
type writer struct {
	buf []byte
	pos int
}

func (w *writer) uint32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:w.pos+4], v)
	w.pos += 4
}

func (w *writer) uint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:w.pos+8], v)
	w.pos += 8
}

func (w *writer) int(v int) {
	w.uint64(uint64(int64(v)))
}

func (w *writer) string(s string) {
	w.uint32(uint32(len(s)))
	w.pos += copy(w.buf[w.pos:], s)
}

func (w *writer) doc(d *document.Document) {
	w.string(d.ID)
	w.int(d.Age)
	w.string(d.LongText)
	w.int(d.Nes.Ted)
	w.uint32(uint32(len(d.List)))
	for _, item := range d.List {
		w.string(item.Value)
	}
}

// reader reads fields and reports truncated input
type reader struct {
	data []byte
	pos  int
}

func (r *reader) uint32(field string) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s length", field)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64(field string) (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) int(field string) (int, error) {
	v, err := r.uint64(field)
	return int(int64(v)), err
}

func (r *reader) string(field string) (string, error) {
	n, err := r.uint32(field)
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", fmt.Errorf("data too short for %s data", field)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// count reads a list length and rejects lengths the remaining data can't hold,
// minSize is the smallest encoded size of one element
func (r *reader) count(field string, minSize int) (int, error) {
	n, err := r.uint32(field)
	if err != nil {
		return 0, err
	}
	if int(n) > (len(r.data)-r.pos)/minSize {
		return 0, fmt.Errorf("data too short for %d %s", n, field)
	}
	return int(n), nil
}

func (r *reader) doc(d *document.Document) (err error) {
	if d.ID, err = r.string("id"); err != nil {
		return err
	}
	if d.Age, err = r.int("age"); err != nil {
		return err
	}
	if d.LongText, err = r.string("longtext"); err != nil {
		return err
	}
	if d.Nes.Ted, err = r.int("nes.ted"); err != nil {
		return err
	}
	n, err := r.count("list", 4)
	if err != nil {
		return err
	}
	if n > 0 {
		d.List = make([]document.ListItem, n)
		for i := range d.List {
			if d.List[i].Value, err = r.string("list value"); err != nil {
				return err
			}
		}
	}
	return nil
}
