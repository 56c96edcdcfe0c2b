package httpapi

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/subtagger/internal/nodes"
)

const (
	defaultBaseName = "proxies"
	maxFileNameLen  = 200
)

// setAttachmentHeaders names the download. An explicit fileName wins;
// otherwise the name is taken from the last path segment of the upstream URL.
func setAttachmentHeaders(w http.ResponseWriter, fileName, upstream string, format nodes.Format) error {
	name, err := downloadName(fileName, upstream, format)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Disposition", contentDispositionAttachment(name))
	return nil
}

func downloadName(fileName, upstream string, format nodes.Format) (string, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return upstreamStem(upstream) + format.Ext(), nil
	}
	switch {
	case strings.ContainsAny(name, "\r\n\x00"):
		return "", badRequest("fileName 含有非法控制字符", "")
	case strings.ContainsAny(name, `/\`):
		return "", badRequest("fileName 不允许包含路径分隔符", "")
	case len(name) > maxFileNameLen:
		return "", badRequest("fileName 过长", "max=200 bytes")
	}
	if !hasExt(name) {
		name += format.Ext()
	}
	return name, nil
}

// upstreamStem returns the upstream file name without its extension, or the
// default base name when there is nothing usable.
func upstreamStem(upstream string) string {
	u, err := url.Parse(upstream)
	if err != nil {
		return defaultBaseName
	}
	base := path.Base(u.Path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" || len(base) > maxFileNameLen ||
		strings.ContainsAny(base, "\r\n\x00\\") {
		return defaultBaseName
	}
	return base
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

// contentDispositionAttachment follows RFC 6266: an ASCII filename for old
// clients plus the exact UTF-8 name in filename* (RFC 5987).
func contentDispositionAttachment(name string) string {
	var b strings.Builder
	b.WriteString(`attachment; filename="`)
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r >= 0x20 && r < utf8.RuneSelf:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteString(`"; filename*=UTF-8''`)
	b.WriteString(pctEncode(name))
	return b.String()
}

// pctEncode escapes everything outside the RFC 5987 attr-char set.
func pctEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
