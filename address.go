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
	"net"
)

// The address abstract data types are raw byte strings on the wire: 4 bytes
// for IPv4, 16 for IPv6, 6 for MAC addresses. None of them permits
// reduced-length encoding.

type IPv4Address struct {
	value net.IP
}

func NewIPv4Address() DataType {
	return &IPv4Address{}
}

func (t *IPv4Address) String() string {
	return t.value.String()
}

func (*IPv4Address) Type() string {
	return "ipv4Address"
}

func (t *IPv4Address) Value() interface{} {
	return t.value
}

func (t *IPv4Address) SetValue(v any) DataType {
	switch b := v.(type) {
	case string:
		ip := net.ParseIP(b)
		if ip == nil {
			panic(fmt.Errorf("cannot parse %q as an IPv4 address in %T", b, t))
		}
		t.value = ip
	case net.IP:
		t.value = b
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T in %T", v, t.value, t))
	}
	// net.ParseIP yields the 16-byte form even for IPv4 addresses; the wire
	// form is always 4 bytes
	if v4 := t.value.To4(); v4 != nil {
		t.value = v4
	}
	return t
}

func (t *IPv4Address) Length() uint16 {
	return t.DefaultLength()
}

func (*IPv4Address) DefaultLength() uint16 {
	return 4
}

func (t *IPv4Address) Clone() DataType {
	return &IPv4Address{value: t.value}
}

func (*IPv4Address) WithLength(length uint16) DataTypeConstructor {
	return NewIPv4Address
}

func (t *IPv4Address) SetLength(length uint16) DataType {
	// address types are always fixed-length
	return t
}

func (*IPv4Address) IsReducedLength() bool {
	return false
}

func (t *IPv4Address) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = net.IP(b)
	return n, nil
}

func (t *IPv4Address) Encode(w io.Writer) (int, error) {
	v := t.value.To4()
	if v == nil {
		return 0, fmt.Errorf("%v is not an IPv4 address", t.value)
	}
	return w.Write(v)
}

func (t *IPv4Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *IPv4Address) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type IPv6Address struct {
	value net.IP
}

func NewIPv6Address() DataType {
	return &IPv6Address{}
}

func (t *IPv6Address) String() string {
	return t.value.String()
}

func (*IPv6Address) Type() string {
	return "ipv6Address"
}

func (t *IPv6Address) Value() interface{} {
	return t.value
}

func (t *IPv6Address) SetValue(v any) DataType {
	switch b := v.(type) {
	case string:
		ip := net.ParseIP(b)
		if ip == nil {
			panic(fmt.Errorf("cannot parse %q as an IPv6 address in %T", b, t))
		}
		t.value = ip
	case net.IP:
		t.value = b
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T in %T", v, t.value, t))
	}
	// the wire form is always the full 16 bytes
	t.value = t.value.To16()
	return t
}

func (t *IPv6Address) Length() uint16 {
	return t.DefaultLength()
}

func (*IPv6Address) DefaultLength() uint16 {
	return 16
}

func (t *IPv6Address) Clone() DataType {
	return &IPv6Address{value: t.value}
}

func (*IPv6Address) WithLength(length uint16) DataTypeConstructor {
	return NewIPv6Address
}

func (t *IPv6Address) SetLength(length uint16) DataType {
	// address types are always fixed-length
	return t
}

func (*IPv6Address) IsReducedLength() bool {
	return false
}

func (t *IPv6Address) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = net.IP(b)
	return n, nil
}

func (t *IPv6Address) Encode(w io.Writer) (int, error) {
	v := t.value.To16()
	if v == nil {
		return 0, fmt.Errorf("%v is not an IPv6 address", t.value)
	}
	return w.Write(v)
}

func (t *IPv6Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *IPv6Address) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type MacAddress struct {
	value net.HardwareAddr
}

func NewMacAddress() DataType {
	return &MacAddress{}
}

func (t *MacAddress) String() string {
	return t.value.String()
}

func (*MacAddress) Type() string {
	return "macAddress"
}

func (t *MacAddress) Value() interface{} {
	return t.value
}

func (t *MacAddress) SetValue(v any) DataType {
	switch b := v.(type) {
	case string:
		ma, err := net.ParseMAC(b)
		if err != nil {
			panic(fmt.Errorf("cannot set value in %T, %w", t, err))
		}
		t.value = ma
	case net.HardwareAddr:
		t.value = b
	default:
		panic(fmt.Errorf("%T cannot be asserted to %T in %T", v, t.value, t))
	}
	return t
}

func (t *MacAddress) Length() uint16 {
	return t.DefaultLength()
}

func (*MacAddress) DefaultLength() uint16 {
	return 6
}

func (t *MacAddress) Clone() DataType {
	return &MacAddress{value: t.value}
}

func (*MacAddress) WithLength(length uint16) DataTypeConstructor {
	return NewMacAddress
}

func (t *MacAddress) SetLength(length uint16) DataType {
	// address types are always fixed-length
	return t
}

func (*MacAddress) IsReducedLength() bool {
	return false
}

func (t *MacAddress) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = net.HardwareAddr(b)
	return n, nil
}

func (t *MacAddress) Encode(w io.Writer) (int, error) {
	if len(t.value) != int(t.Length()) {
		return 0, fmt.Errorf("%v is not a 6 byte MAC address", t.value)
	}
	return w.Write(t.value)
}

func (t *MacAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value.String())
}

func (t *MacAddress) UnmarshalJSON(in []byte) error {
	var s string
	if err := json.Unmarshal(in, &s); err != nil {
		return err
	}
	ma, err := net.ParseMAC(s)
	if err != nil {
		return err
	}
	t.value = ma
	return nil
}

var _ DataTypeConstructor = NewIPv4Address
var _ DataTypeConstructor = NewIPv6Address
var _ DataTypeConstructor = NewMacAddress

var _ DataType = &IPv4Address{}
var _ DataType = &IPv6Address{}
var _ DataType = &MacAddress{}
