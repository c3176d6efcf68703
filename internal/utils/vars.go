package utils

import (
	"errors"
	"regexp"
)

const (
	DefaultBufferSize = 32 * 1024
	SocketBufferSize  = 1024 * 1024 * 8
	DefaultExtension  = ".mp4"
	ToolUserAgent     = "vdl/1.0"
)

var (
	ErrRangeRequestsNotSupported = errors.New("range requests are not supported")
	ErrUnexpectedStatus          = errors.New("unexpected status code")
	ErrInsufficientSpace         = errors.New("disk full")
	ErrMoveFailed                = errors.New("failed to move file to destination")
	ErrUnexpectedEOF             = errors.New("unexpected EOF")
)

var ChunkFileRegex = regexp.MustCompile(`^chunk_(\d+)$`)
var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/7.88.1",
	"Wget/1.21.4",
}
