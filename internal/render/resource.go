package render

import (
	"path/filepath"
	"strings"

	"github.com/aescanero/dago-node-renderer/internal/store"
)

// DefaultExtension is appended to resource names when resolving templates
const DefaultExtension = ".lt"

// Kind classifies a resource reference
type Kind int

const (
	// KindNone resolves against the root only
	KindNone Kind = iota
	// KindTemplate is a top-level template; resolves against the root only
	KindTemplate
	// KindLayout looks under root/layout first
	KindLayout
	// KindPartial looks under root/partial first
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindTemplate:
		return "template"
	case KindLayout:
		return "layout"
	case KindPartial:
		return "partial"
	default:
		return "none"
	}
}

// subpath returns the kind-specific directory searched before the root
func (k Kind) subpath() string {
	switch k {
	case KindLayout:
		return "layout"
	case KindPartial:
		return "partial"
	default:
		return ""
	}
}

// Ref names a resource relative to a root directory
type Ref struct {
	Root string
	Name string
	Kind Kind
}

// NewRef validates that name stays within root and returns the reference.
// The check runs before anything is read.
func NewRef(root, name string, kind Kind) (Ref, error) {
	cleanRoot := filepath.Clean(root)
	if abs, err := filepath.Abs(cleanRoot); err == nil {
		cleanRoot = abs
	}

	joined := filepath.Join(cleanRoot, name)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Ref{}, &PathSecurityError{Root: cleanRoot, Name: name}
	}

	return Ref{Root: cleanRoot, Name: name, Kind: kind}, nil
}

// Resolve returns the first existing candidate path for the reference.
//
// Kinded references look under their subpath first and then fall back to the
// root. At each location name+ext wins; with allowBare the extensionless file
// is tried next.
func (r Ref) Resolve(fs store.FileStore, ext string, allowBare bool) (string, error) {
	if ext == "" {
		ext = DefaultExtension
	}

	var tried []string
	for _, dir := range r.locations() {
		base := filepath.Join(dir, r.Name)
		candidates := []string{base + ext}
		if allowBare {
			candidates = append(candidates, base)
		}
		for _, candidate := range candidates {
			tried = append(tried, candidate)
			if fs.Exists(candidate) {
				return candidate, nil
			}
		}
	}

	return "", &ResourceNotFoundError{Name: r.Name, Kind: r.Kind, Tried: tried}
}

func (r Ref) locations() []string {
	if sub := r.Kind.subpath(); sub != "" {
		return []string{filepath.Join(r.Root, sub), r.Root}
	}
	return []string{r.Root}
}
