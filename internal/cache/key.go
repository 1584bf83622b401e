package cache

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Key 是 URL 映射后的缓存键，形如 scheme/host/seg1/seg2，使用 `/` 分隔。
type Key string

// String 返回键的原始字符串形式。
func (k Key) String() string {
	return string(k)
}

// Schema 返回键的首段（协议名），即索引树的顶层分区。
func (k Key) Schema() string {
	s := string(k)
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// MetadataPath 返回 metadata 记录相对存储根目录的路径。
func (k Key) MetadataPath() string {
	return path.Join(string(k), MetadataName)
}

// BodyPath 返回指定正文文件名相对存储根目录的路径。
func (k Key) BodyPath(basename string) string {
	return path.Join(string(k), basename)
}

// ErrInvalidURL 表示 URL 缺少协议或主机，无法映射为缓存键。
var ErrInvalidURL = errors.New("invalid cache url")

// KeyFor 将 URL 转换为缓存键。片段（#...）始终被忽略。
func KeyFor(rawURL string) (Key, error) {
	encoded, err := EncodeURL(rawURL)
	if err != nil {
		return "", err
	}
	return Key(encoded), nil
}

// EncodeURL 把 URL 映射为文件系统安全的相对路径：协议、主机、路径各段依次排列，
// 每段中的控制字符、`<>:"/\|?*` 以及 `%` 本身都会被百分号转义。
// 由于 `%` 也被转义，对已转义的字符串再次编码会得到更长且不冲突的结果。
func EncodeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	rawPath := u.EscapedPath()
	if u.RawQuery != "" || u.ForceQuery {
		rawPath += "?" + u.RawQuery
	}

	parts := []string{strings.ToLower(u.Scheme), u.Host}
	for _, segment := range strings.Split(rawPath, "/") {
		if segment == "" {
			continue
		}
		parts = append(parts, segment)
	}

	for i, part := range parts {
		parts[i] = escapeSegment(part)
	}
	return strings.Join(parts, "/"), nil
}

const upperHex = "0123456789ABCDEF"

// escapeSegment 转义单个路径段；`.` 与 `..` 也会被转义，避免被当作目录跳转。
func escapeSegment(segment string) string {
	switch segment {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}

	var b strings.Builder
	b.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if shouldEscape(c) {
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0F])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func shouldEscape(c byte) bool {
	if c < 0x20 {
		return true
	}
	switch c {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*', '%':
		return true
	}
	return false
}
