package session

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress splits "host:port" on its single colon. Anything else, including
// IPv6 literals, is rejected before a connection is attempted.
func ParseAddress(s string) (string, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("%w: %q, expected host:port", ErrInvalidAddress, s)
	}
	host := strings.TrimSpace(parts[0])
	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", 0, fmt.Errorf("%w: port %q is not a number", ErrInvalidAddress, parts[1])
	}
	if err := validate(host, port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func validate(host string, port int) error {
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return nil
}
