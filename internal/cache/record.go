package cache

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const (
	// MetadataName 是每个缓存目录中 metadata 记录的文件名，它的存在即代表提交完成。
	MetadataName = "metadata"
	// BodyPrefix 是正文文件名前缀，完整文件名为 body<ext>。
	BodyPrefix = "body"
	// NoBodyMarker 写入重定向记录的尾部，表示没有正文，需跟随 Location。
	NoBodyMarker = "no content"

	sectionSeparator = "\r\n\r\n"
	lineSeparator    = "\r\n"
	trailerPrefix    = "wrote "
	statusPrefix     = "Status "
)

// ErrMalformedRecord 表示 metadata 内容无法解析。
var ErrMalformedRecord = errors.New("malformed metadata record")

// HeaderLine 保存一行有序的头部。
type HeaderLine struct {
	Key   string
	Value string
}

// Record 对应 metadata 文件的四段内容：请求行、请求头、响应头、尾部。
type Record struct {
	Method          string
	URL             string
	RequestHeaders  []HeaderLine
	StatusCode      int
	StatusText      string
	ResponseHeaders []HeaderLine
	// Trailer 为 `wrote ` 之后的内容；为空表示记录缺少尾部。
	Trailer string
}

// NewRecord 根据请求/响应头构建记录，头部按 key 排序保证输出稳定。
func NewRecord(rawURL string, reqHeaders http.Header, status int, statusText string, respHeaders http.Header, trailer string) Record {
	return Record{
		Method:          http.MethodGet,
		URL:             rawURL,
		RequestHeaders:  headerLines(reqHeaders),
		StatusCode:      status,
		StatusText:      statusText,
		ResponseHeaders: headerLines(respHeaders),
		Trailer:         trailer,
	}
}

func headerLines(h http.Header) []HeaderLine {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]HeaderLine, 0, len(keys))
	for _, key := range keys {
		for _, value := range h[key] {
			lines = append(lines, HeaderLine{Key: key, Value: value})
		}
	}
	return lines
}

// Header 在响应头中做大小写不敏感查找，返回第一个值。
func (r Record) Header(key string) string {
	for _, line := range r.ResponseHeaders {
		if strings.EqualFold(line.Key, key) {
			return line.Value
		}
	}
	return ""
}

// ContentType 返回记录的 Content-Type，缺省为 application/octet-stream。
func (r Record) ContentType() string {
	if ct := strings.TrimSpace(r.Header("Content-Type")); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Location 返回重定向目标；仅当记录是重定向（3xx 或无正文尾部）且带 Location 时有效。
func (r Record) Location() (string, bool) {
	loc := strings.TrimSpace(r.Header("Location"))
	if loc == "" {
		return "", false
	}
	if r.StatusCode >= 300 && r.StatusCode < 400 {
		return loc, true
	}
	if r.Trailer == NoBodyMarker {
		return loc, true
	}
	return "", false
}

// BodyName 返回尾部记录的正文文件名（body<ext>）。
func (r Record) BodyName() (string, bool) {
	if !strings.HasPrefix(r.Trailer, BodyPrefix) {
		return "", false
	}
	return r.Trailer, true
}

// Marshal 输出 CRLF-CRLF 分隔的 metadata 文本。
func (r Record) Marshal() []byte {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	reqLines := make([]string, 0, len(r.RequestHeaders))
	for _, line := range r.RequestHeaders {
		reqLines = append(reqLines, fmt.Sprintf("> %s: %s", line.Key, line.Value))
	}

	respLines := make([]string, 0, len(r.ResponseHeaders)+1)
	respLines = append(respLines, strings.TrimRight(fmt.Sprintf("< %s%d %s", statusPrefix, r.StatusCode, r.StatusText), " "))
	for _, line := range r.ResponseHeaders {
		respLines = append(respLines, fmt.Sprintf("< %s: %s", line.Key, line.Value))
	}

	sections := []string{
		method + " " + r.URL,
		strings.Join(reqLines, lineSeparator),
		strings.Join(respLines, lineSeparator),
		trailerPrefix + r.Trailer,
	}
	return []byte(strings.Join(sections, sectionSeparator))
}

// ParseRecord 解析 metadata 文本。缺少尾部不会报错，而是留空 Trailer，
// 由调用方决定是否视为损坏。
func ParseRecord(data []byte) (Record, error) {
	sections := strings.SplitN(string(data), sectionSeparator, 4)

	var rec Record
	method, target, ok := strings.Cut(strings.TrimSpace(sections[0]), " ")
	if !ok || method == "" || target == "" {
		return Record{}, fmt.Errorf("%w: bad request line %q", ErrMalformedRecord, sections[0])
	}
	rec.Method = method
	rec.URL = strings.TrimSpace(target)

	if len(sections) > 1 {
		for _, line := range splitLines(sections[1]) {
			key, value, ok := parseHeaderLine(line, "> ")
			if !ok {
				return Record{}, fmt.Errorf("%w: bad request header %q", ErrMalformedRecord, line)
			}
			rec.RequestHeaders = append(rec.RequestHeaders, HeaderLine{Key: key, Value: value})
		}
	}

	if len(sections) > 2 {
		for _, line := range splitLines(sections[2]) {
			if status, ok := strings.CutPrefix(line, "< "+statusPrefix); ok {
				codeText, message, _ := strings.Cut(status, " ")
				code, err := strconv.Atoi(codeText)
				if err != nil {
					return Record{}, fmt.Errorf("%w: bad status line %q", ErrMalformedRecord, line)
				}
				rec.StatusCode = code
				rec.StatusText = message
				continue
			}
			key, value, ok := parseHeaderLine(line, "< ")
			if !ok {
				return Record{}, fmt.Errorf("%w: bad response header %q", ErrMalformedRecord, line)
			}
			rec.ResponseHeaders = append(rec.ResponseHeaders, HeaderLine{Key: key, Value: value})
		}
	}

	if len(sections) > 3 {
		trailer := strings.TrimSpace(sections[3])
		if name, ok := strings.CutPrefix(trailer, trailerPrefix); ok {
			rec.Trailer = strings.TrimSpace(name)
		}
	}

	return rec, nil
}

func splitLines(section string) []string {
	var lines []string
	for _, line := range strings.Split(section, lineSeparator) {
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func parseHeaderLine(line, prefix string) (string, string, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", "", false
	}
	key, value, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}
