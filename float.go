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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

type Float32 struct {
	value float32
}

func NewFloat32() DataType {
	return &Float32{}
}

func (t *Float32) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Float32) Type() string {
	return "float32"
}

func (t *Float32) Value() interface{} {
	return t.value
}

func (t *Float32) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = float32(ty)
	case float32:
		t.value = ty
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Float32) Length() uint16 {
	return t.DefaultLength()
}

func (*Float32) DefaultLength() uint16 {
	return 4
}

func (t *Float32) Clone() DataType {
	return &Float32{value: t.value}
}

func (*Float32) WithLength(length uint16) DataTypeConstructor {
	return NewFloat32
}

func (t *Float32) SetLength(length uint16) DataType {
	// float32 has no narrower IEEE 754 form
	return t
}

func (*Float32) IsReducedLength() bool {
	return false
}

func (t *Float32) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = math.Float32frombits(binary.BigEndian.Uint32(b))
	return n, nil
}

func (t *Float32) Encode(w io.Writer) (int, error) {
	b := make([]byte, t.Length())
	binary.BigEndian.PutUint32(b, math.Float32bits(t.value))
	return w.Write(b)
}

func (t *Float32) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Float32) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

// Float64 carries the double-precision abstract data type. The only
// permitted reduced-length encoding narrows it to single precision on the
// wire, RFC 7011, section 6.2.
type Float64 struct {
	value float64

	reducedLength bool
}

func NewFloat64() DataType {
	return &Float64{}
}

func (t *Float64) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Float64) Type() string {
	return "float64"
}

func (t *Float64) Value() interface{} {
	return t.value
}

func (t *Float64) SetValue(v any) DataType {
	switch ty := v.(type) {
	case float64:
		t.value = ty
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	return t
}

func (t *Float64) Length() uint16 {
	if t.reducedLength {
		return 4
	}
	return t.DefaultLength()
}

func (*Float64) DefaultLength() uint16 {
	return 8
}

func (t *Float64) Clone() DataType {
	return &Float64{
		value:         t.value,
		reducedLength: t.reducedLength,
	}
}

func (t *Float64) WithLength(length uint16) DataTypeConstructor {
	if length == 4 {
		return func() DataType {
			return &Float64{reducedLength: true}
		}
	}
	return NewFloat64
}

func (t *Float64) SetLength(length uint16) DataType {
	t.reducedLength = length == 4
	return t
}

func (t *Float64) IsReducedLength() bool {
	return t.reducedLength
}

func (t *Float64) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	if t.reducedLength {
		t.value = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	} else {
		t.value = math.Float64frombits(binary.BigEndian.Uint64(b))
	}
	return n, nil
}

func (t *Float64) Encode(w io.Writer) (int, error) {
	b := make([]byte, t.Length())
	if t.reducedLength {
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(t.value)))
	} else {
		binary.BigEndian.PutUint64(b, math.Float64bits(t.value))
	}
	return w.Write(b)
}

func (t *Float64) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Float64) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

var _ DataTypeConstructor = NewFloat32
var _ DataTypeConstructor = NewFloat64

var _ DataType = &Float32{}
var _ DataType = &Float64{}
