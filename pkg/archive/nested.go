package archive

import (
	"fmt"
	"strings"
)

// Structure names the packaging layout an archive was resolved from.
type Structure string

const (
	StructureFlat   Structure = "flat"
	StructureNested Structure = "nested"
)

// Resolver unwraps the one nested-archive convention tour packages use: an
// outer zip holding a single "<anything>Web.zip" whose files live under
// "Web/". Only one level is resolved.
type Resolver struct {
	Reader Reader
	// Marker is the case-insensitive suffix identifying the embedded archive.
	Marker string
	// Root is the folder inside the embedded archive that becomes the tour root.
	Root string
}

// Resolution is the re-rooted entry list plus what was found.
type Resolution struct {
	Entries   []Entry
	Structure Structure
	// Marker is the outer member that was unwrapped, if any.
	Marker string
	// Candidates counts outer members matching Marker.
	Candidates int
}

// Resolve extracts data and, if it embeds a marker archive, returns that
// archive's entries re-rooted at Root. Otherwise the flat list is returned
// unchanged.
func (r Resolver) Resolve(data []byte) (Resolution, error) {
	outer, err := r.Reader.Extract(data)
	if err != nil {
		return Resolution{}, err
	}
	return r.ResolveEntries(outer)
}

// ResolveEntries applies the nested-archive decision to an extracted list.
func (r Resolver) ResolveEntries(outer []Entry) (Resolution, error) {
	marker := strings.ToLower(r.Marker)
	idx, candidates := -1, 0
	for i, e := range outer {
		if e.IsDirectory || marker == "" || IsHidden(e.Path) {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Path), marker) {
			if idx < 0 {
				idx = i
			}
			candidates++
		}
	}
	if idx < 0 {
		return Resolution{Entries: outer, Structure: StructureFlat}, nil
	}

	inner, err := r.Reader.Extract(outer[idx].Data)
	if err != nil {
		return Resolution{}, fmt.Errorf("nested archive %s: %w", outer[idx].Path, err)
	}

	root := strings.TrimSuffix(r.Root, "/") + "/"
	entries := make([]Entry, 0, len(inner))
	for _, e := range inner {
		rel, ok := strings.CutPrefix(e.Path, root)
		if !ok || rel == "" || IsHidden(rel) {
			continue
		}
		e.Path = rel
		entries = append(entries, e)
	}
	return Resolution{
		Entries:    entries,
		Structure:  StructureNested,
		Marker:     outer[idx].Path,
		Candidates: candidates,
	}, nil
}

var hiddenNames = map[string]struct{}{
	".ds_store":       {},
	"thumbs.db":       {},
	"desktop.ini":     {},
	"__macosx":        {},
	".spotlight-v100": {},
	".trashes":        {},
	".fseventsd":      {},
}

// IsHidden reports whether p lies in an OS metadata folder or names an OS
// metadata file such as macOS resource forks.
func IsHidden(p string) bool {
	for _, seg := range strings.Split(strings.TrimSuffix(p, "/"), "/") {
		lower := strings.ToLower(seg)
		if _, ok := hiddenNames[lower]; ok {
			return true
		}
		if strings.HasPrefix(seg, "._") {
			return true
		}
	}
	return false
}
