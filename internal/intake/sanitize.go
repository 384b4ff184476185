package intake

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName is returned for file names that cannot be staged safely.
var ErrInvalidName = errors.New("invalid upload file name")

const maxNameLen = 255

// SanitizeName reduces a client supplied file name to a single safe path
// element: NFC normalised, directory components stripped for both slash
// styles, control characters removed.
func SanitizeName(name string) (string, error) {
	name = norm.NFC.String(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if len(name) > maxNameLen {
		// keep the extension so the archive flag survives truncation
		ext := ""
		if i := strings.LastIndexByte(name, '.'); i > 0 && len(name)-i <= 16 {
			ext = name[i:]
		}
		name = strings.ToValidUTF8(name[:maxNameLen-len(ext)], "") + ext
	}
	return name, nil
}
