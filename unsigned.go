/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ipfix

import (
	"encoding/json"
	"fmt"
	"io"
)

// The unsigned abstract data types share their wire form: big-endian,
// most-significant bytes dropped under reduced-length encoding. The two
// helpers below implement that form once, over uint64.

// decodeUintBE reads exactly length big-endian bytes from r.
func decodeUintBE(r io.Reader, length uint16) (uint64, int, error) {
	b := make([]byte, length)
	n, err := io.ReadFull(r, b)
	if err != nil {
		return 0, n, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, n, nil
}

// encodeUintBE writes v as exactly length big-endian bytes. Values that do
// not fit the narrowed width are rejected rather than truncated.
func encodeUintBE(w io.Writer, v uint64, length uint16) (int, error) {
	if length < 8 && v >= 1<<(8*length) {
		return 0, fmt.Errorf("value %d does not fit %d bytes of reduced-length encoding", v, length)
	}
	b := make([]byte, length)
	u := v
	for i := int(length) - 1; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return w.Write(b)
}

type Unsigned8 struct {
	value uint8
}

func NewUnsigned8() DataType {
	return &Unsigned8{}
}

func (t *Unsigned8) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Unsigned8) Type() string {
	return "unsigned8"
}

func (t *Unsigned8) Value() interface{} {
	return t.value
}

func (t *Unsigned8) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = uint8(ty)
	case int:
		t.value = uint8(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Unsigned8) Length() uint16 {
	return t.DefaultLength()
}

func (*Unsigned8) DefaultLength() uint16 {
	return 1
}

func (t *Unsigned8) Clone() DataType {
	return &Unsigned8{value: t.value}
}

func (*Unsigned8) WithLength(length uint16) DataTypeConstructor {
	return NewUnsigned8
}

func (t *Unsigned8) SetLength(length uint16) DataType {
	// unsigned8 is already as short as we can get
	return t
}

func (*Unsigned8) IsReducedLength() bool {
	return false
}

func (t *Unsigned8) Decode(in io.Reader) (int, error) {
	v, n, err := decodeUintBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = uint8(v)
	return n, nil
}

func (t *Unsigned8) Encode(w io.Writer) (int, error) {
	return encodeUintBE(w, uint64(t.value), t.Length())
}

func (t *Unsigned8) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Unsigned8) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type Unsigned16 struct {
	value uint16

	length        uint16
	reducedLength bool
}

func NewUnsigned16() DataType {
	return &Unsigned16{}
}

func (t *Unsigned16) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Unsigned16) Type() string {
	return "unsigned16"
}

func (t *Unsigned16) Value() interface{} {
	return t.value
}

func (t *Unsigned16) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = uint16(ty)
	case int:
		t.value = uint16(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Unsigned16) Length() uint16 {
	if t.length > 0 {
		return t.length
	}
	return t.DefaultLength()
}

func (*Unsigned16) DefaultLength() uint16 {
	return 2
}

func (t *Unsigned16) Clone() DataType {
	return &Unsigned16{
		value:         t.value,
		length:        t.length,
		reducedLength: t.reducedLength,
	}
}

func (t *Unsigned16) WithLength(length uint16) DataTypeConstructor {
	if length > 0 && length < t.DefaultLength() {
		return func() DataType {
			return &Unsigned16{
				length:        length,
				reducedLength: true,
			}
		}
	}
	return NewUnsigned16
}

func (t *Unsigned16) SetLength(length uint16) DataType {
	// only lengths below the natural width are reduced-length encodings
	if length > 0 && length < t.DefaultLength() {
		t.length = length
		t.reducedLength = true
	} else {
		t.length = t.DefaultLength()
	}
	return t
}

func (t *Unsigned16) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Unsigned16) Decode(in io.Reader) (int, error) {
	v, n, err := decodeUintBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = uint16(v)
	return n, nil
}

func (t *Unsigned16) Encode(w io.Writer) (int, error) {
	return encodeUintBE(w, uint64(t.value), t.Length())
}

func (t *Unsigned16) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Unsigned16) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type Unsigned32 struct {
	value uint32

	length        uint16
	reducedLength bool
}

func NewUnsigned32() DataType {
	return &Unsigned32{}
}

func (t *Unsigned32) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Unsigned32) Type() string {
	return "unsigned32"
}

func (t *Unsigned32) Value() interface{} {
	return t.value
}

func (t *Unsigned32) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = uint32(ty)
	case int:
		t.value = uint32(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Unsigned32) Length() uint16 {
	if t.length > 0 {
		return t.length
	}
	return t.DefaultLength()
}

func (*Unsigned32) DefaultLength() uint16 {
	return 4
}

func (t *Unsigned32) Clone() DataType {
	return &Unsigned32{
		value:         t.value,
		length:        t.length,
		reducedLength: t.reducedLength,
	}
}

func (t *Unsigned32) WithLength(length uint16) DataTypeConstructor {
	if length > 0 && length < t.DefaultLength() {
		return func() DataType {
			return &Unsigned32{
				length:        length,
				reducedLength: true,
			}
		}
	}
	return NewUnsigned32
}

func (t *Unsigned32) SetLength(length uint16) DataType {
	if length > 0 && length < t.DefaultLength() {
		t.length = length
		t.reducedLength = true
	} else {
		t.length = t.DefaultLength()
	}
	return t
}

func (t *Unsigned32) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Unsigned32) Decode(in io.Reader) (int, error) {
	v, n, err := decodeUintBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = uint32(v)
	return n, nil
}

func (t *Unsigned32) Encode(w io.Writer) (int, error) {
	return encodeUintBE(w, uint64(t.value), t.Length())
}

func (t *Unsigned32) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Unsigned32) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type Unsigned64 struct {
	value uint64

	length        uint16
	reducedLength bool
}

func NewUnsigned64() DataType {
	return &Unsigned64{}
}

func (t *Unsigned64) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Unsigned64) Type() string {
	return "unsigned64"
}

func (t *Unsigned64) Value() interface{} {
	return t.value
}

func (t *Unsigned64) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = uint64(ty)
	case int:
		t.value = uint64(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Unsigned64) Length() uint16 {
	if t.length > 0 {
		return t.length
	}
	return t.DefaultLength()
}

func (*Unsigned64) DefaultLength() uint16 {
	return 8
}

func (t *Unsigned64) Clone() DataType {
	return &Unsigned64{
		value:         t.value,
		length:        t.length,
		reducedLength: t.reducedLength,
	}
}

func (t *Unsigned64) WithLength(length uint16) DataTypeConstructor {
	if length > 0 && length < t.DefaultLength() {
		return func() DataType {
			return &Unsigned64{
				length:        length,
				reducedLength: true,
			}
		}
	}
	return NewUnsigned64
}

func (t *Unsigned64) SetLength(length uint16) DataType {
	if length > 0 && length < t.DefaultLength() {
		t.length = length
		t.reducedLength = true
	} else {
		t.length = t.DefaultLength()
	}
	return t
}

func (t *Unsigned64) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Unsigned64) Decode(in io.Reader) (int, error) {
	v, n, err := decodeUintBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = v
	return n, nil
}

func (t *Unsigned64) Encode(w io.Writer) (int, error) {
	return encodeUintBE(w, t.value, t.Length())
}

func (t *Unsigned64) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Unsigned64) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

var _ DataTypeConstructor = NewUnsigned8
var _ DataTypeConstructor = NewUnsigned16
var _ DataTypeConstructor = NewUnsigned32
var _ DataTypeConstructor = NewUnsigned64

var _ DataType = &Unsigned8{}
var _ DataType = &Unsigned16{}
var _ DataType = &Unsigned32{}
var _ DataType = &Unsigned64{}
