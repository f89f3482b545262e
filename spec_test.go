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
	"context"
	"strings"
	"testing"
)

func TestParseIESpec(t *testing.T) {
	tests := []struct {
		spec string
		want ParsedIESpec
		fail bool
	}{
		{
			spec: "octetDeltaCount(1)<unsigned64>[8]",
			want: ParsedIESpec{Name: "octetDeltaCount", Number: 1, Type: "unsigned64", Length: 8},
		},
		{
			spec: "sourceIPv4Address(8)<ipv4Address>[4]",
			want: ParsedIESpec{Name: "sourceIPv4Address", Number: 8, Type: "ipv4Address", Length: 4},
		},
		{
			spec: "(29305/1)<unsigned64>",
			want: ParsedIESpec{PEN: 29305, Number: 1, Type: "unsigned64"},
		},
		{
			spec: "mplsTopLabelStackSection",
			want: ParsedIESpec{Name: "mplsTopLabelStackSection"},
		},
		{
			spec: "interfaceName[v]",
			want: ParsedIESpec{Name: "interfaceName", Length: VariableLength},
		},
		{
			spec: "",
			fail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			p, err := ParseIESpec(tt.spec)
			if tt.fail {
				if err == nil {
					t.Errorf("expected %q to fail to parse", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, p)
			}
		})
	}
}

func newTestCatalog(t *testing.T) (*Catalog, FieldCache) {
	t.Helper()
	templates := NewDefaultEphemeralCache()
	fields := NewEphemeralFieldCache(templates)
	return NewCatalog(fields), fields
}

func TestCatalogForSpec(t *testing.T) {
	ctx := context.Background()

	t.Run("known name resolves", func(t *testing.T) {
		c, _ := newTestCatalog(t)
		if err := c.UseIANADefault(ctx); err != nil {
			t.Fatal(err)
		}
		ie, err := c.ForSpec(ctx, "octetDeltaCount")
		if err != nil {
			t.Fatal(err)
		}
		if ie.Id != 1 || ie.EnterpriseId != 0 {
			t.Errorf("expected octetDeltaCount as (0/1), got (%d/%d)", ie.EnterpriseId, ie.Id)
		}
	})

	t.Run("unknown name without type fails", func(t *testing.T) {
		c, _ := newTestCatalog(t)
		if _, err := c.ForSpec(ctx, "definitelyNotRegistered"); err == nil {
			t.Error("expected unregistered bare name to fail")
		}
	})

	t.Run("empty spec fails", func(t *testing.T) {
		c, _ := newTestCatalog(t)
		if _, err := c.ForSpec(ctx, ""); err == nil {
			t.Error("expected empty spec to fail")
		}
	})

	t.Run("new element registers with type", func(t *testing.T) {
		c, fields := newTestCatalog(t)
		ie, err := c.ForSpec(ctx, "myCounter(6871/42)<unsigned32>")
		if err != nil {
			t.Fatal(err)
		}
		if ie.Name != "myCounter" || ie.EnterpriseId != 6871 || ie.Id != 42 {
			t.Errorf("unexpected registration result %+v", ie)
		}
		// the element is now resolvable both by name and by number
		if _, err := c.ForSpec(ctx, "myCounter"); err != nil {
			t.Errorf("expected registered name to resolve, got %v", err)
		}
		if _, err := fields.Get(ctx, NewFieldKey(6871, 42)); err != nil {
			t.Errorf("expected registered number to resolve, got %v", err)
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		c, _ := newTestCatalog(t)
		if _, err := c.ForSpec(ctx, "broken(1/2)<notAType>"); err == nil {
			t.Error("expected unknown type to be rejected")
		}
	})
}

func TestCatalogForTemplateEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	ie := c.ForTemplateEntry(ctx, 9999, 100, 6)
	if want := "_ipfix_9999_100"; ie.Name != want {
		t.Errorf("expected synthesized name %s, got %s", want, ie.Name)
	}
	if ie.Constructor == nil || ie.Constructor().Type() != "octetArray" {
		t.Error("expected synthesized element to carry the octetArray type")
	}

	// known elements resolve instead of synthesizing
	if err := c.UseIANADefault(ctx); err != nil {
		t.Fatal(err)
	}
	known := c.ForTemplateEntry(ctx, 0, 1, 8)
	if known.Name != "octetDeltaCount" {
		t.Errorf("expected octetDeltaCount, got %s", known.Name)
	}
}

func TestCatalogSpecList(t *testing.T) {
	ctx := context.Background()
	c, fields := newTestCatalog(t)

	specs := strings.Join([]string{
		"# comment lines and blanks are skipped",
		"",
		"flowCount(6871/1)<unsigned64>[8]",
		"deviceName(6871/2)<string>[v]",
	}, "\n")

	if err := c.SpecList(ctx, strings.NewReader(specs)); err != nil {
		t.Fatal(err)
	}
	if _, err := fields.Get(ctx, NewFieldKey(6871, 1)); err != nil {
		t.Errorf("expected flowCount to be registered, got %v", err)
	}
	if _, err := fields.Get(ctx, NewFieldKey(6871, 2)); err != nil {
		t.Errorf("expected deviceName to be registered, got %v", err)
	}
}
