// Package manifest loads the Expo project manifest that the build service
// expects as the payload of a status request.
//
// The manifest is the `expo` section of a project's app.json:
//
//	{
//	  "expo": {
//	    "name": "My App",
//	    "slug": "my-app",
//	    "owner": "acme",
//	    "android": { "package": "com.acme.myapp" }
//	  }
//	}
//
// Only a handful of fields are interpreted locally; the document is otherwise
// forwarded to the server unchanged.
package manifest

import (
	"fmt"
	"strings"
)

// Manifest is a snapshot of the `expo` section of a project descriptor.
//
// Values keep the shape produced by decoding JSON into `any`: nested objects
// are map[string]any, arrays are []any, numbers are float64.
type Manifest map[string]any

// Get returns the value at the given nested path.
func (m Manifest) Get(path ...string) (any, bool) {
	if len(path) == 0 {
		return map[string]any(m), m != nil
	}
	var cur any = map[string]any(m)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at the given nested path, or "" when the value
// is absent or not a string.
func (m Manifest) String(path ...string) string {
	v, ok := m.Get(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Lookup resolves a dot-separated path such as "android.package".
func (m Manifest) Lookup(dotted string) (any, bool) {
	if dotted == "" {
		return m.Get()
	}
	return m.Get(strings.Split(dotted, ".")...)
}

// Name returns the project's display name.
func (m Manifest) Name() string { return m.String("name") }

// Slug returns the project's URL slug.
func (m Manifest) Slug() string { return m.String("slug") }

// Label returns a short human identifier for log output.
func (m Manifest) Label() string {
	owner := m.String("owner")
	slug := m.Slug()
	switch {
	case owner != "" && slug != "":
		return fmt.Sprintf("@%s/%s", owner, slug)
	case slug != "":
		return slug
	case m.Name() != "":
		return m.Name()
	default:
		return "(unnamed project)"
	}
}
