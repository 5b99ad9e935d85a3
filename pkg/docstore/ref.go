package docstore

import (
	"strings"
)

// CollectionRef addresses a collection: an odd number of path segments.
type CollectionRef struct {
	path string
}

// DocumentRef addresses a single document: an even number of path segments.
type DocumentRef struct {
	path string
}

// Collection builds a reference from a slash separated path such as "tenants/acme/products".
func Collection(path string) CollectionRef {
	return CollectionRef{path: cleanPath(path)}
}

// Doc builds a document reference from a slash separated path.
func Doc(path string) DocumentRef {
	return DocumentRef{path: cleanPath(path)}
}

func (c CollectionRef) Path() string { return c.path }

// ID is the last path segment.
func (c CollectionRef) ID() string { return lastSegment(c.path) }

// Doc returns the child document. The id is not validated here; store operations reject malformed refs.
func (c CollectionRef) Doc(id string) DocumentRef {
	return DocumentRef{path: c.path + "/" + id}
}

// Parent returns the owning document for subcollections.
func (c CollectionRef) Parent() (DocumentRef, bool) {
	idx := strings.LastIndex(c.path, "/")
	if idx < 0 {
		return DocumentRef{}, false
	}
	return DocumentRef{path: c.path[:idx]}, true
}

// Query starts an unfiltered query over the collection.
func (c CollectionRef) Query() Query {
	return Query{collection: c}
}

func (c CollectionRef) valid() bool {
	segs, ok := segments(c.path)
	return ok && len(segs)%2 == 1
}

func (d DocumentRef) Path() string { return d.path }

func (d DocumentRef) ID() string { return lastSegment(d.path) }

// Parent returns the collection holding the document.
func (d DocumentRef) Parent() CollectionRef {
	idx := strings.LastIndex(d.path, "/")
	if idx < 0 {
		return CollectionRef{}
	}
	return CollectionRef{path: d.path[:idx]}
}

// Collection returns a subcollection under the document.
func (d DocumentRef) Collection(name string) CollectionRef {
	return CollectionRef{path: d.path + "/" + name}
}

func (d DocumentRef) valid() bool {
	segs, ok := segments(d.path)
	return ok && len(segs) > 0 && len(segs)%2 == 0
}

func cleanPath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func segments(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if strings.TrimSpace(seg) == "" {
			return nil, false
		}
	}
	return segs, true
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
