package utils

import (
	"errors"
	"regexp"
)

const DefaultBufferSize = 1024 * 256 // 256KB read buffer per segment
const SocketBufferSize = 1024 * 1024 * 4
const DefaultSegments = 2
const LogFile = ".splitget.log"
const AssemblingSuffix = ".assembling"
const ToolUserAgent = "splitget/1.0"

var ErrRangeRequestsNotSupported = errors.New("range requests are not supported")
var ErrMissingContentLength = errors.New("server didn't provide a usable content length")
var ErrNoFileName = errors.New("cannot derive a file name from the URL path")
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// matches <name>.<segments>.<index>
var PartialFileRegex = regexp.MustCompile(`^(.+)\.(\d+)\.(\d+)$`)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:136.0) Gecko/20100101 Firefox/136.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/8.5.0",
	"Wget/1.21.4",
}
