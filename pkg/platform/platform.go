package platform

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
)

// Info describes the host platform as read from the OS release file
type Info struct {
	OS         string   // GOOS value: "linux", "darwin", ...
	ID         string   // os-release ID, e.g. "ubuntu", "centos"
	IDLike     []string // os-release ID_LIKE, e.g. ["rhel", "fedora"]
	VersionID  string
	PrettyName string
}

const osReleasePath = "/etc/os-release"

// Detect identifies the host platform. On Linux it parses /etc/os-release;
// on other systems only the GOOS value is filled in.
func Detect(logger logging.Logger) (*Info, error) {
	info := &Info{OS: runtime.GOOS}

	if runtime.GOOS != "linux" {
		logger.Infof("Detected platform: %s", info.OS)
		return info, nil
	}

	file, err := os.Open(osReleasePath)
	if err != nil {
		return nil, errors.NewIOError("failed to open OS release file", err).WithContext("path", osReleasePath)
	}
	defer file.Close()

	if err := parseOSRelease(file, info); err != nil {
		return nil, err
	}

	logger.Infof("Detected platform: %s (%s)", info.PrettyName, info.ID)
	return info, nil
}

// parseOSRelease fills info from os-release content (KEY=value lines,
// values optionally quoted)
func parseOSRelease(r io.Reader, info *Info) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"'`)

		switch key {
		case "ID":
			info.ID = strings.ToLower(value)
		case "ID_LIKE":
			for _, like := range strings.Fields(value) {
				info.IDLike = append(info.IDLike, strings.ToLower(like))
			}
		case "VERSION_ID":
			info.VersionID = value
		case "PRETTY_NAME":
			info.PrettyName = value
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.NewIOError("failed to read OS release content", err)
	}
	return nil
}
