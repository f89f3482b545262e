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
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// OctetArray carries raw bytes. Like String it has no natural wire width;
// it is also the fallback type for information elements first seen on the
// wire, so unknown fields survive decoding byte-for-byte.
type OctetArray struct {
	value []byte

	length uint16
}

func NewOctetArray() DataType {
	return &OctetArray{}
}

func (t *OctetArray) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*OctetArray) Type() string {
	return "octetArray"
}

// Length returns the current byte length, which Decode relies on: the width
// to consume is injected via WithLength/SetLength before decoding.
func (t *OctetArray) Length() uint16 {
	return t.length
}

func (t *OctetArray) Value() interface{} {
	return t.value
}

func (t *OctetArray) SetValue(v any) DataType {
	// byte arrays are base64-string encoded in JSON
	switch b := v.(type) {
	case string:
		sd, _ := base64.StdEncoding.DecodeString(b)
		t.value = sd
		t.length = uint16(len(sd))
	case []byte:
		t.value = b
		t.length = uint16(len(b))
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T in %T", v, t.value, t))
	}
	return t
}

func (*OctetArray) DefaultLength() uint16 {
	return 0
}

func (t *OctetArray) Clone() DataType {
	return &OctetArray{
		value:  t.value,
		length: t.length,
	}
}

// WithLength returns a DataTypeConstructor function with a fixed, given length
func (*OctetArray) WithLength(length uint16) DataTypeConstructor {
	return func() DataType {
		return &OctetArray{
			length: length,
		}
	}
}

func (t *OctetArray) SetLength(length uint16) DataType {
	t.length = length
	return t
}

// IsReducedLength for OctetArray abstract data types returns false, as reduced-length
// encoding for arrays of bytes has no semantic value.
func (*OctetArray) IsReducedLength() bool {
	return false
}

func (t *OctetArray) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = b
	return n, nil
}

func (t *OctetArray) Encode(w io.Writer) (int, error) {
	return w.Write(t.value)
}

// MarshalJSON encodes the bytes in the "0x<hex>" form used by libfds'
// JSON converter, which keeps values readable in dumped messages.
func (t *OctetArray) MarshalJSON() ([]byte, error) {
	var o string
	if t.value != nil {
		o = "0x" + hex.EncodeToString(t.value)
	}
	return []byte(fmt.Sprintf("%q", o)), nil
}

func (t *OctetArray) UnmarshalJSON(in []byte) error {
	// takes in a string of the form "0x<hex>" where only the <hex> part carries data
	if len(in) < 4 {
		t.value = nil
		return nil
	}
	o, err := hex.DecodeString(string(in)[3 : len(in)-1])
	if err != nil {
		return err
	}
	t.value = o
	t.length = uint16(len(o))
	return nil
}

var _ DataTypeConstructor = NewOctetArray
var _ DataType = &OctetArray{}
