package download

import (
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var pathExtPattern = regexp.MustCompile(`(\.\w{1,4})$`)

// preferredExtensions 固定常见类型的扩展名，避免依赖系统 mime.types 的排序。
var preferredExtensions = map[string]string{
	"text/html":                ".html",
	"text/plain":               ".txt",
	"text/csv":                 ".csv",
	"text/xml":                 ".xml",
	"application/xml":          ".xml",
	"application/json":         ".json",
	"application/pdf":          ".pdf",
	"application/zip":          ".zip",
	"application/gzip":         ".gz",
	"application/x-gzip":       ".gz",
	"application/vnd.ms-excel": ".xls",
	"application/msword":       ".doc",
	"image/png":                ".png",
	"image/jpeg":               ".jpeg",
	"image/gif":                ".gif",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// ResolveExtension 按优先级决定正文扩展名：
// Content-Disposition 文件名 → Content-Type 映射（拒绝通用二进制类型）→ URL 路径 → 空串。
func ResolveExtension(header http.Header, rawURL string) string {
	if ext := dispositionExtension(header.Get("Content-Disposition")); ext != "" {
		return ext
	}
	if ext := contentTypeExtension(header.Get("Content-Type")); ext != "" {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		return pathExtension(u.Path)
	}
	return ""
}

func pathExtension(p string) string {
	if m := pathExtPattern.FindStringSubmatch(p); m != nil {
		return m[1]
	}
	return ""
}

func dispositionExtension(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return pathExtension(params["filename"])
}

func contentTypeExtension(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	if mediaType == "application/octet-stream" {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	if exts[0] == ".bin" {
		return ""
	}
	return exts[0]
}
