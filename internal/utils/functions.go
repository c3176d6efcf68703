package utils

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// TaskIDFor derives a stable task ID from the source URL.
func TaskIDFor(rawURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String()
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// AvailablePath returns target unchanged when nothing exists there yet, or
// the first free RenewOutputPath candidate.
func AvailablePath(target string) string {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	return RenewOutputPath(target)
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// EncodeHeaders returns a copy with the Cookie value base64 encoded for storage.
func EncodeHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Cookie") {
			v = base64.StdEncoding.EncodeToString([]byte(v))
		}
		out[k] = v
	}
	return out
}

// DecodeHeaders reverses EncodeHeaders. A Cookie value that is not valid
// base64 is passed through as-is.
func DecodeHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Cookie") {
			if raw, err := base64.StdEncoding.DecodeString(v); err == nil {
				v = string(raw)
			}
		}
		out[k] = v
	}
	return out
}

// SanitizeFileName strips path elements and unsafe characters and appends
// defaultExt when the name has no extension.
func SanitizeFileName(name, defaultExt string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" || name == "/" {
		name = "download"
	}
	if filepath.Ext(name) == "" && defaultExt != "" {
		if !strings.HasPrefix(defaultExt, ".") {
			defaultExt = "." + defaultExt
		}
		name += defaultExt
	}
	return name
}

// FileNameFromURL infers a file name from the last path segment of a URL.
func FileNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// MoveFile renames src to dst, copying across filesystems when rename fails.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// ProgressLine renders the human readable line carried by progress snapshots.
func ProgressLine(downloaded, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("downloading %s", FormatBytes(uint64(max(downloaded, 0))))
	}
	percent := float64(downloaded) / float64(total) * 100
	return fmt.Sprintf("downloading %s / %s (%.1f%%)", FormatBytes(uint64(max(downloaded, 0))), FormatBytes(uint64(total)), percent)
}

// CleanTemp removes every task working directory under root.
func CleanTemp(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
