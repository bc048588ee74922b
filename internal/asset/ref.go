package asset

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the declared raw type of a resource. It decides how fetched
// bytes are decoded and which loader variant a Ref maps to.
type Kind string

const (
	// KindBlob resources decode to []byte.
	KindBlob Kind = "blob"
	// KindText resources decode to string.
	KindText Kind = "text"
	// KindData resources are HCL or JSON documents decoded to a cty object.
	KindData Kind = "data"
	// KindPrefab resources decode to *scene.Prefab and can be instantiated
	// into a parent container.
	KindPrefab Kind = "prefab"
)

var kinds = []Kind{KindBlob, KindText, KindData, KindPrefab}

// ParseKind converts a manifest string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown asset kind '%s': must be one of %s", s, kindList())
}

func kindList() string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Ref identifies a loadable resource. It is an immutable, comparable value
// so it can be used as a map key and shared between loaders.
type Ref struct {
	Key  string
	Kind Kind
	// Part names a sub-component to extract from a prefab. Empty means
	// the whole resource.
	Part string
}

// Blob returns a Ref to a raw byte resource.
func Blob(key string) Ref { return Ref{Key: key, Kind: KindBlob} }

// Text returns a Ref to a text resource.
func Text(key string) Ref { return Ref{Key: key, Kind: KindText} }

// Data returns a Ref to a structured HCL/JSON document.
func Data(key string) Ref { return Ref{Key: key, Kind: KindData} }

// Prefab returns a Ref to a prefab definition.
func Prefab(key string) Ref { return Ref{Key: key, Kind: KindPrefab} }

// WithPart returns a copy of r that targets the named sub-component.
func (r Ref) WithPart(part string) Ref {
	r.Part = part
	return r
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r == Ref{} }

// Validate checks that r can be handed to a loader.
func (r Ref) Validate() error {
	if r.Key == "" {
		return errors.New("asset ref has an empty key")
	}
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if r.Part != "" && r.Kind != KindPrefab {
		return fmt.Errorf("asset ref %s: part is only supported for %s assets", r, KindPrefab)
	}
	return nil
}

// String renders the ref as kind:key or kind:key#part.
func (r Ref) String() string {
	s := string(r.Kind) + ":" + r.Key
	if r.Part != "" {
		s += "#" + r.Part
	}
	return s
}
