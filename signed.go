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

// decodeIntBE reads exactly length big-endian two's-complement bytes from r
// and sign-extends them to int64.
func decodeIntBE(r io.Reader, length uint16) (int64, int, error) {
	u, n, err := decodeUintBE(r, length)
	if err != nil {
		return 0, n, err
	}
	shift := 64 - 8*uint(length)
	return int64(u<<shift) >> shift, n, nil
}

// encodeIntBE writes v as exactly length big-endian two's-complement bytes.
// Values whose magnitude does not fit the narrowed width are rejected.
func encodeIntBE(w io.Writer, v int64, length uint16) (int, error) {
	if length < 8 {
		if s := v >> (8*uint(length) - 1); s != 0 && s != -1 {
			return 0, fmt.Errorf("value %d does not fit %d bytes of reduced-length encoding", v, length)
		}
	}
	b := make([]byte, length)
	u := uint64(v)
	for i := int(length) - 1; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return w.Write(b)
}

type Signed8 struct {
	value int8
}

func NewSigned8() DataType {
	return &Signed8{}
}

func (t *Signed8) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Signed8) Type() string {
	return "signed8"
}

func (t *Signed8) Value() interface{} {
	return t.value
}

func (t *Signed8) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = int8(ty)
	case int:
		t.value = int8(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Signed8) Length() uint16 {
	return t.DefaultLength()
}

func (*Signed8) DefaultLength() uint16 {
	return 1
}

func (t *Signed8) Clone() DataType {
	return &Signed8{value: t.value}
}

func (*Signed8) WithLength(length uint16) DataTypeConstructor {
	return NewSigned8
}

func (t *Signed8) SetLength(length uint16) DataType {
	// signed8 is already as short as we can get
	return t
}

func (*Signed8) IsReducedLength() bool {
	return false
}

func (t *Signed8) Decode(in io.Reader) (int, error) {
	v, n, err := decodeIntBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = int8(v)
	return n, nil
}

func (t *Signed8) Encode(w io.Writer) (int, error) {
	return encodeIntBE(w, int64(t.value), t.Length())
}

func (t *Signed8) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Signed8) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type Signed16 struct {
	value int16

	length        uint16
	reducedLength bool
}

func NewSigned16() DataType {
	return &Signed16{}
}

func (t *Signed16) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Signed16) Type() string {
	return "signed16"
}

func (t *Signed16) Value() interface{} {
	return t.value
}

func (t *Signed16) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = int16(ty)
	case int:
		t.value = int16(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Signed16) Length() uint16 {
	if t.length > 0 {
		return t.length
	}
	return t.DefaultLength()
}

func (*Signed16) DefaultLength() uint16 {
	return 2
}

func (t *Signed16) Clone() DataType {
	return &Signed16{
		value:         t.value,
		length:        t.length,
		reducedLength: t.reducedLength,
	}
}

func (t *Signed16) WithLength(length uint16) DataTypeConstructor {
	if length > 0 && length < t.DefaultLength() {
		return func() DataType {
			return &Signed16{
				length:        length,
				reducedLength: true,
			}
		}
	}
	return NewSigned16
}

func (t *Signed16) SetLength(length uint16) DataType {
	if length > 0 && length < t.DefaultLength() {
		t.length = length
		t.reducedLength = true
	} else {
		t.length = t.DefaultLength()
	}
	return t
}

func (t *Signed16) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Signed16) Decode(in io.Reader) (int, error) {
	v, n, err := decodeIntBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = int16(v)
	return n, nil
}

func (t *Signed16) Encode(w io.Writer) (int, error) {
	return encodeIntBE(w, int64(t.value), t.Length())
}

func (t *Signed16) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Signed16) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type Signed32 struct {
	value int32

	length        uint16
	reducedLength bool
}

func NewSigned32() DataType {
	return &Signed32{}
}

func (t *Signed32) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Signed32) Type() string {
	return "signed32"
}

func (t *Signed32) Value() interface{} {
	return t.value
}

func (t *Signed32) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = int32(ty)
	case int:
		t.value = int32(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Signed32) Length() uint16 {
	if t.length > 0 {
		return t.length
	}
	return t.DefaultLength()
}

func (*Signed32) DefaultLength() uint16 {
	return 4
}

func (t *Signed32) Clone() DataType {
	return &Signed32{
		value:         t.value,
		length:        t.length,
		reducedLength: t.reducedLength,
	}
}

func (t *Signed32) WithLength(length uint16) DataTypeConstructor {
	if length > 0 && length < t.DefaultLength() {
		return func() DataType {
			return &Signed32{
				length:        length,
				reducedLength: true,
			}
		}
	}
	return NewSigned32
}

func (t *Signed32) SetLength(length uint16) DataType {
	if length > 0 && length < t.DefaultLength() {
		t.length = length
		t.reducedLength = true
	} else {
		t.length = t.DefaultLength()
	}
	return t
}

func (t *Signed32) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Signed32) Decode(in io.Reader) (int, error) {
	v, n, err := decodeIntBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = int32(v)
	return n, nil
}

func (t *Signed32) Encode(w io.Writer) (int, error) {
	return encodeIntBE(w, int64(t.value), t.Length())
}

func (t *Signed32) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Signed32) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type Signed64 struct {
	value int64

	length        uint16
	reducedLength bool
}

func NewSigned64() DataType {
	return &Signed64{}
}

func (t *Signed64) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Signed64) Type() string {
	return "signed64"
}

func (t *Signed64) Value() interface{} {
	return t.value
}

func (t *Signed64) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = int64(ty)
	case int:
		t.value = int64(ty)
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Signed64) Length() uint16 {
	if t.length > 0 {
		return t.length
	}
	return t.DefaultLength()
}

func (*Signed64) DefaultLength() uint16 {
	return 8
}

func (t *Signed64) Clone() DataType {
	return &Signed64{
		value:         t.value,
		length:        t.length,
		reducedLength: t.reducedLength,
	}
}

func (t *Signed64) WithLength(length uint16) DataTypeConstructor {
	if length > 0 && length < t.DefaultLength() {
		return func() DataType {
			return &Signed64{
				length:        length,
				reducedLength: true,
			}
		}
	}
	return NewSigned64
}

func (t *Signed64) SetLength(length uint16) DataType {
	if length > 0 && length < t.DefaultLength() {
		t.length = length
		t.reducedLength = true
	} else {
		t.length = t.DefaultLength()
	}
	return t
}

func (t *Signed64) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Signed64) Decode(in io.Reader) (int, error) {
	v, n, err := decodeIntBE(in, t.Length())
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = v
	return n, nil
}

func (t *Signed64) Encode(w io.Writer) (int, error) {
	return encodeIntBE(w, t.value, t.Length())
}

func (t *Signed64) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Signed64) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

var _ DataTypeConstructor = NewSigned8
var _ DataTypeConstructor = NewSigned16
var _ DataTypeConstructor = NewSigned32
var _ DataTypeConstructor = NewSigned64

var _ DataType = &Signed8{}
var _ DataType = &Signed16{}
var _ DataType = &Signed32{}
var _ DataType = &Signed64{}
