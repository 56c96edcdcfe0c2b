package nodes

import (
	"encoding/base64"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/subtagger/internal/model"
)

const ssScheme = "ss://"

// looksLikeSubscription reports whether content is a raw ss:// list or a
// single base64 blob. YAML and JSON node lists always contain ':' or '{'
// outside the base64 alphabet.
func looksLikeSubscription(trimmed string) bool {
	if strings.HasPrefix(trimmed, ssScheme) || strings.Contains(trimmed, "\n"+ssScheme) {
		return true
	}
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '-', c == '_', c == '=':
		case c == ' ', c == '\t', c == '\r', c == '\n':
		default:
			return false
		}
	}
	return true
}

// parseSubscription reads a shadowsocks subscription: ss:// URIs one per
// line, optionally wrapped in base64. Nodes come out in Clash field layout so
// they render like any other list.
func parseSubscription(trimmed string) (*Document, error) {
	raw := trimmed
	if !strings.Contains(raw, ssScheme) {
		decoded, err := decodeB64(removeWhitespace(raw))
		if err != nil {
			return nil, newSubError(0, raw, "订阅 base64 解码失败", "", err)
		}
		if !utf8.Valid(decoded) {
			return nil, newSubError(0, raw, "订阅 base64 解码结果不是合法 UTF-8", "", nil)
		}
		raw = strings.TrimSpace(strings.TrimPrefix(string(decoded), "\uFEFF"))
	}

	d := &Document{source: FormatClash}
	for i, line := range strings.Split(raw, "\n") {
		orig := line
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, ssScheme) {
			return nil, newSubError(i+1, orig, "仅支持 ss:// 协议", "expected: ss://...", nil)
		}
		n, err := parseSSURI(i+1, line)
		if err != nil {
			return nil, err
		}
		d.Nodes = append(d.Nodes, n)
	}
	if len(d.Nodes) == 0 {
		return nil, newSubError(0, "", "订阅中没有任何可用节点", "", nil)
	}
	return d, nil
}

type ssURI struct {
	name       string
	server     string
	port       int
	cipher     string
	password   string
	plugin     string
	pluginOpts map[string]any
}

func (u ssURI) node() model.ProxyNode {
	f := map[string]any{
		"type":     "ss",
		"server":   u.server,
		"port":     u.port,
		"cipher":   u.cipher,
		"password": u.password,
	}
	if u.plugin != "" {
		f["plugin"] = u.plugin
		if len(u.pluginOpts) > 0 {
			f["plugin-opts"] = u.pluginOpts
		}
	}
	return model.ProxyNode{Name: u.name, Fields: f}
}

// parseSSURI accepts SIP002 (ss://b64(method:password)@host:port/?plugin=...)
// and the legacy ss://b64(method:password@host:port) form.
func parseSSURI(lineNo int, s string) (model.ProxyNode, error) {
	fail := func(msg string, cause error) (model.ProxyNode, error) {
		return model.ProxyNode{}, newSubError(lineNo, s, msg, "", cause)
	}

	var u ssURI
	rest, frag, hasFrag := strings.Cut(s, "#")
	if hasFrag {
		name, err := url.PathUnescape(frag)
		if err != nil {
			return fail("节点名称 URL 解码失败", err)
		}
		u.name = strings.TrimSpace(name)
		if strings.ContainsAny(u.name, "\r\n\x00") {
			return fail("节点名称包含非法控制字符", nil)
		}
	}
	rest, query, _ := strings.Cut(rest, "?")
	plugin, opts, err := parsePluginQuery(query)
	if err != nil {
		return fail(err.Error(), nil)
	}
	u.plugin, u.pluginOpts = plugin, opts

	rest = strings.TrimPrefix(rest, ssScheme)
	if rest == "" {
		return fail("ss:// 后缺少内容", nil)
	}

	var creds, hostPort string
	if userB64, hp, ok := strings.Cut(rest, "@"); ok {
		if p, slash, found := strings.Cut(hp, "/"); found {
			if slash != "" {
				return fail("ss uri path 不支持（仅允许空或 /）", nil)
			}
			hp = p
		}
		b, err := decodeB64(userB64)
		if err != nil {
			return fail("ss userinfo base64 解码失败", err)
		}
		creds, hostPort = string(b), hp
	} else {
		b, err := decodeB64(strings.TrimSuffix(rest, "/"))
		if err != nil {
			return fail("ss base64 解码失败", err)
		}
		at := strings.LastIndexByte(string(b), '@')
		if at < 0 {
			return fail("ss base64 解码结果缺少 @ 分隔符", nil)
		}
		creds, hostPort = string(b[:at]), string(b[at+1:])
	}

	if !utf8.ValidString(creds) {
		return fail("cipher:password 不是合法 UTF-8", nil)
	}
	method, password, ok := strings.Cut(creds, ":")
	u.cipher, u.password = strings.TrimSpace(method), strings.TrimSpace(password)
	if !ok || u.cipher == "" || u.password == "" {
		return fail("cipher 或 password 不能为空", nil)
	}
	if strings.ContainsAny(creds, "\r\n\x00") {
		return fail("cipher 或 password 包含非法控制字符", nil)
	}

	if u.server, u.port, err = parseHostPort(hostPort); err != nil {
		return fail("服务器地址或端口不合法", err)
	}
	if u.name == "" {
		u.name = net.JoinHostPort(u.server, strconv.Itoa(u.port))
	}
	return u.node(), nil
}

// parsePluginQuery only knows "plugin". net/url.ParseQuery is not used because
// SIP002 plugin values carry raw ';'.
func parsePluginQuery(query string) (string, map[string]any, error) {
	var value *string
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return "", nil, errors.New("query 参数必须是 key=value 形式")
		}
		k, err := url.PathUnescape(k)
		if err != nil {
			return "", nil, errors.New("query 参数解码失败")
		}
		if v, err = url.PathUnescape(v); err != nil {
			return "", nil, errors.New("query 参数解码失败")
		}
		if k != "plugin" {
			return "", nil, errors.New("出现未知 query 参数（仅支持 plugin）")
		}
		if value != nil {
			return "", nil, errors.New("重复的 plugin 参数")
		}
		value = &v
	}
	if value == nil {
		return "", nil, nil
	}

	segs := strings.Split(*value, ";")
	name := strings.TrimSpace(segs[0])
	if name == "" {
		return "", nil, errors.New("plugin 名称不能为空")
	}
	opts := make(map[string]any, len(segs)-1)
	for _, seg := range segs[1:] {
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return "", nil, errors.New("plugin 选项必须是 k=v 形式")
		}
		opts[k] = v
	}
	return name, opts, nil
}

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	if host = strings.TrimSpace(host); host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, port, nil
}

// decodeB64 tries padded and raw, standard and URL-safe alphabets.
func decodeB64(s string) ([]byte, error) {
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func removeWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
