package josh

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// VFSFile is one entry of the virtual-file-system wire format (§6): a
// path, a binary flag, and its content.
type VFSFile struct {
	Path   string
	Binary bool
	Content []byte
}

const vfsFieldSep = "\t"

// EncodeVFS serializes files as the tab-delimited wire format: for each
// file, `path` TAB `flag` TAB `content` TAB, where flag is "1" for
// base64-encoded binary content and "0" for text with embedded tabs
// converted to four spaces.
func EncodeVFS(files []VFSFile) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString(f.Path)
		b.WriteString(vfsFieldSep)
		if f.Binary {
			b.WriteString("1")
			b.WriteString(vfsFieldSep)
			b.WriteString(base64.StdEncoding.EncodeToString(f.Content))
		} else {
			b.WriteString("0")
			b.WriteString(vfsFieldSep)
			b.WriteString(strings.ReplaceAll(string(f.Content), "\t", "    "))
		}
		b.WriteString(vfsFieldSep)
	}
	return b.String()
}

// DecodeVFS parses the tab-delimited wire format back into files, consuming
// (path, flag, content) triples until the stream is exhausted.
func DecodeVFS(stream string) ([]VFSFile, error) {
	if stream == "" {
		return nil, nil
	}
	parts := strings.Split(stream, vfsFieldSep)
	// A well-formed stream ends in a trailing separator, producing a
	// trailing empty field; drop it if present.
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts)%3 != 0 {
		return nil, fmt.Errorf("vfs: malformed stream: %d fields is not a multiple of 3", len(parts))
	}
	out := make([]VFSFile, 0, len(parts)/3)
	for i := 0; i < len(parts); i += 3 {
		path := parts[i]
		flag := parts[i+1]
		raw := parts[i+2]
		switch flag {
		case "1":
			content, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("vfs: decoding %q: %w", path, err)
			}
			out = append(out, VFSFile{Path: path, Binary: true, Content: content})
		case "0":
			out = append(out, VFSFile{Path: path, Binary: false, Content: []byte(raw)})
		default:
			return nil, fmt.Errorf("vfs: unrecognized flag %q for %q", flag, path)
		}
	}
	return out, nil
}
