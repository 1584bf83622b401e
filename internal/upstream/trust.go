package upstream

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadTrustAnchors 在系统根证书之上追加 dir 下所有 *.pem 以及 files 中的证书。
// dir 与 files 均为空时返回 nil，表示使用 Go 默认的系统证书池。
func LoadTrustAnchors(dir string, files []string) (*x509.CertPool, error) {
	paths := append([]string(nil), files...)
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read trust anchor dir: %w", err)
		}
		var found []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pem") {
				continue
			}
			found = append(found, filepath.Join(dir, entry.Name()))
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read trust anchor %s: %w", p, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("trust anchor %s contains no certificates", p)
		}
	}
	return pool, nil
}
