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

// Boolean is encoded in the single-byte SMI TruthValue form: 1 means true,
// 2 means false, every other value fails to decode.
type Boolean struct {
	value bool
}

func NewBoolean() DataType {
	return &Boolean{}
}

func (t *Boolean) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*Boolean) Type() string {
	return "boolean"
}

func (t *Boolean) Value() interface{} {
	return t.value
}

func (t *Boolean) SetValue(v any) DataType {
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	t.value = b
	return t
}

func (t *Boolean) Length() uint16 {
	return t.DefaultLength()
}

func (*Boolean) DefaultLength() uint16 {
	return 1
}

func (t *Boolean) Clone() DataType {
	return &Boolean{value: t.value}
}

func (*Boolean) WithLength(length uint16) DataTypeConstructor {
	return NewBoolean
}

func (t *Boolean) SetLength(length uint16) DataType {
	// booleans are always a single byte
	return t
}

func (*Boolean) IsReducedLength() bool {
	return false
}

func (t *Boolean) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	switch b[0] {
	case 1:
		t.value = true
	case 2:
		t.value = false
	default:
		return n, fmt.Errorf("failed to decode %T, %w", t, ErrUndefinedEncoding)
	}
	return n, nil
}

func (t *Boolean) Encode(w io.Writer) (int, error) {
	if t.value {
		return w.Write([]byte{1})
	}
	return w.Write([]byte{2})
}

func (t *Boolean) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *Boolean) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

var _ DataTypeConstructor = NewBoolean
var _ DataType = &Boolean{}
